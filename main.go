package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/config"
	"github.com/devconnect/chatcore/messenger"
	"github.com/devconnect/chatcore/model"
	"github.com/devconnect/chatcore/store"
	"github.com/devconnect/chatcore/ws"
)

var (
	flagConfig  = flag.String("config", "", "yaml config file, defaults apply when empty")
	flagEnvFile = flag.String("env-file", ".env", "dotenv file with endpoint overrides, ignored when missing")
	flagStorage = flag.String("storage", "chatcore.db", "local storage file holding the credential")
	flagToken   = flag.String("token", "", "store this bearer credential before starting")

	flagUser    = flag.Int64("user", 0, "user id, for credentials that carry none; must match the credential otherwise")
	flagRole    = flag.String("role", "", "DEVELOPER or CLIENT, for credentials that carry none; /new searches the other role")
	flagPeer    = flag.Int64("peer", 0, "open the conversation with this user, list chats when 0")
	flagProject = flag.Int64("project", 0, "project context of sent messages, the configured default when 0")
	flagSearch  = flag.String("search", "", "chat list: only chats whose name or last message match")
	flagUnread  = flag.Bool("unread", false, "chat list: only chats with unread messages")

	flagMetricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on this address, ip:port")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	if err := godotenv.Load(*flagEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errorf("--env-file: %v", err)
	}
	conf, err := config.Load(*flagConfig)
	if err != nil {
		return errorf("%v", err)
	}
	conf.ApplyEnv()
	if err := conf.Validate(); err != nil {
		return errorf("%v", err)
	}

	st, err := auth.OpenBoltStore(*flagStorage)
	if err != nil {
		return errorf("--storage: %v", err)
	}
	defer st.Close()
	if *flagToken != "" {
		if err := st.Set(conf.TokenKeys[0], *flagToken); err != nil {
			return errorf("store token: %v", err)
		}
	}

	tokens := &auth.Keyring{Store: st, Keys: conf.TokenKeys}
	sess, err := auth.SessionFromToken(tokens)
	switch {
	case err == nil && *flagUser != 0 && sess.UserID != *flagUser:
		return errorf("--user %d does not match the credential's user %d", *flagUser, sess.UserID)
	case err != nil && *flagUser != 0 && !errors.Is(err, auth.ErrNoToken) && !errors.Is(err, jwt.ErrTokenExpired):
		glog.Infof("credential carries no usable user id (%v), using --user %d", err, *flagUser)
		sess = &auth.Session{UserID: *flagUser, Tokens: tokens}
	case err != nil:
		return errorf("no usable credential, pass --token: %v", err)
	}
	if sess.Role == "" {
		sess.Role = model.ParseRole(*flagRole)
	}

	if *flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		go func() {
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics server: %v", err)
			}
		}()
	}

	m := messenger.New(conf, sess, ws.NewManager(conf, tokens), store.NewRestStore(conf.APIBaseURL, tokens, conf.RequestTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	glog.Infof("chatcore is starting, user: %d", sess.UserID)
	if err := m.Start(ctx); err != nil {
		return errorf("start: %v", err)
	}
	defer m.Stop()

	out := newConsole(os.Stdout, m)
	if *flagPeer == 0 {
		out.printChats(*flagSearch, *flagUnread)
		return 0
	}

	if err := out.open(ctx, *flagPeer, *flagProject); err != nil {
		glog.Errorf("open conversation with %d: %v", *flagPeer, err)
	}

	lineCh := make(chan string)
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			glog.Infof("received signal `%s` stopping", sig.String())
			return 0
		case line, ok := <-lineCh:
			if !ok {
				return 0
			}
			if quit := out.handle(ctx, line); quit {
				return 0
			}
		}
	}
}

func validateFlags() int {
	if *flagStorage == "" {
		return errorf("--storage is required")
	}
	if *flagUser < 0 {
		return errorf("--user must not be negative")
	}
	if *flagRole != "" && model.ParseRole(*flagRole) == "" {
		return errorf("--role must be DEVELOPER or CLIENT")
	}
	if *flagPeer < 0 {
		return errorf("--peer must not be negative")
	}
	if *flagProject < 0 {
		return errorf("--project must not be negative")
	}
	if *flagPeer != 0 && (*flagSearch != "" || *flagUnread) {
		return errorf("--search and --unread apply to the chat list only, drop --peer")
	}
	if *flagMetricsAddr != "" {
		if _, _, err := net.SplitHostPort(*flagMetricsAddr); err != nil {
			return errorf("--metrics-addr: %v", err)
		}
	}
	return 0
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

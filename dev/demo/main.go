package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"

	"github.com/devconnect/chatcore/dev/backend"
	"github.com/devconnect/chatcore/model"
)

// The demo server runs the in-memory backend so that two chatcore CLIs can
// talk to each other on one machine. It prints a token per demo user.

var (
	listenAddr = flag.String("listen-addr", "127.0.0.1:8081", "http listen address")
	secret     = flag.String("secret", "devconnect-demo", "jwt signing secret")
	users      = flag.String("users", "1:Alice:CLIENT,2:Bob:DEVELOPER,3:Carol:DEVELOPER", "demo users as id:name:role, ',' delimitted")
)

type demoUser struct {
	name string
	role model.Role
}

func parseUsers(s string) (map[int64]demoUser, error) {
	out := make(map[int64]demoUser)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 3)
		uid, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || uid <= 0 {
			return nil, fmt.Errorf("bad user %q", item)
		}
		var u demoUser
		if len(parts) > 1 {
			u.name = parts[1]
		}
		if len(parts) > 2 {
			if u.role = model.ParseRole(parts[2]); u.role == "" {
				return nil, fmt.Errorf("bad role in %q", item)
			}
		}
		out[uid] = u
	}
	return out, nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "--secret is required.")
		os.Exit(1)
	}
	demoUsers, err := parseUsers(*users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--users: %v\n", err)
		os.Exit(1)
	}

	s := backend.New([]byte(*secret))
	for uid, u := range demoUsers {
		s.AddUser(uid, u.name, u.role)
		tok, err := s.Token(uid)
		if err != nil {
			glog.Exitf("issue token for %d: %v", uid, err)
		}
		fmt.Printf("user %d (%s, %s): %s\n", uid, u.name, u.role, tok)
	}
	if err := s.Start(); err != nil {
		glog.Exitf("start backend: %v", err)
	}
	defer s.Close()

	srv := &http.Server{Addr: *listenAddr, Handler: s}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Exitf("listen %s: %v", *listenAddr, err)
		}
	}()
	glog.Infof("demo backend listening on %s, api: %s, ws: %s", *listenAddr, backend.APIPath, backend.WSPath)

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	<-sigC
	glog.Infof("demo backend: shutting down")
	srv.Close()
}

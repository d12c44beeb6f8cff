package chatstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/devconnect/chatcore/model"
)

// Composer is the text buffer of a conversation. It emits this user's
// typing indicator and submits the buffer as a message.
type Composer struct {
	sync.Mutex

	conv     *Conversation
	debounce time.Duration

	text   string
	err    error
	closed bool

	// typing is set between "typing started" and "typing stopped".
	typing bool
	gen    int
	timer  *time.Timer
}

func NewComposer(conv *Conversation) *Composer {
	return &Composer{
		conv:     conv,
		debounce: conv.conf.TypingStopDebounce,
	}
}

// SetText replaces the buffer. The first non-blank edit after a pause emits
// "typing started"; "typing stopped" follows once edits pause for the
// debounce period, or at once when the buffer is cleared.
func (c *Composer) SetText(text string) {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return
	}
	c.text = text

	if strings.TrimSpace(text) == "" {
		c.stopTypingLocked()
		return
	}
	if !c.typing {
		c.typing = true
		c.conv.SendTyping(true)
	}
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.Lock()
		defer c.Unlock()
		if gen == c.gen {
			c.stopTypingLocked()
		}
	})
}

// stopTypingLocked emits "typing stopped" if a typing run is active.
// Requires c.Lock.
func (c *Composer) stopTypingLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.typing {
		c.typing = false
		c.conv.SendTyping(false)
	}
}

// Submit sends the trimmed buffer. A blank buffer yields
// model.ErrEmptyMessage. When the conversation cannot send the buffer is
// kept and the *model.NotConnectedError is also exposed through Err. A
// failed delivery leaves the message in the conversation for Resend.
func (c *Composer) Submit(ctx context.Context) error {
	c.Lock()
	text := strings.TrimSpace(c.text)
	if text == "" {
		c.Unlock()
		return model.ErrEmptyMessage
	}
	if c.closed {
		c.Unlock()
		return &model.NotConnectedError{Op: "submit"}
	}
	if err := c.conv.CanSend(); err != nil {
		c.err = err
		c.Unlock()
		glog.V(5).Infof("composer: submit refused: %v", err)
		return err
	}
	c.stopTypingLocked()
	c.text = ""
	c.err = nil
	c.Unlock()

	err := c.conv.Send(ctx, text)
	if err == nil {
		return nil
	}

	c.Lock()
	c.err = err
	var failure *model.SendFailure
	if !errors.As(err, &failure) && c.text == "" {
		// refused before anything was appended: give the text back
		c.text = text
	}
	c.Unlock()
	return err
}

// Text is the current buffer.
func (c *Composer) Text() string {
	c.Lock()
	defer c.Unlock()
	return c.text
}

// Err is the error of the last submit, nil after a successful one.
func (c *Composer) Err() error {
	c.Lock()
	defer c.Unlock()
	return c.err
}

// Close ends an active typing run and disarms the timer. Idempotent.
func (c *Composer) Close() {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return
	}
	c.stopTypingLocked()
	c.closed = true
}

// Package notify delivers tracker events to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
)

type Kind string

const (
	KindAdded        Kind = "added"
	KindUpdated      Kind = "updated"
	KindNewContent   Kind = "new-content"
	KindFetchFailed  Kind = "fetch-failed"
	KindLimitReached Kind = "limit-reached"
	KindCapReached   Kind = "cap-reached"
)

// Event is one user-facing notification.
type Event struct {
	Kind      Kind
	TrackerID string
	// Source names what the event is about, usually the tracker title
	Source  string
	Message string
	Link    string
}

// Text renders the event as plain text.
func (e Event) Text() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString("\n")
	}
	b.WriteString(e.Message)
	if e.Link != "" {
		b.WriteString("\n")
		b.WriteString(e.Link)
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Log writes events to the debug log.
type Log struct{}

func (Log) Notify(_ context.Context, e Event) error {
	debuglog.WithFields(map[string]interface{}{
		"event":   string(e.Kind),
		"tracker": e.TrackerID,
	}).Infof("%s: %s", e.Source, e.Message)
	return nil
}

// Multi fans an event out to every notifier. One failing notifier does not
// stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notifier chain from config. The log notifier is always
// present; Telegram is added when a token is configured.
func New(cfg config.NotifyConfig) (Notifier, error) {
	chain := Multi{Log{}}
	if cfg.Telegram.Token != "" {
		tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
		chain = append(chain, tg)
	}
	return chain, nil
}

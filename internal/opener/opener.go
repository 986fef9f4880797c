// Package opener hands tracker links to the desktop's URL handler.
package opener

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/tracker"
)

var ErrNoLink = errors.New("tracker has nothing to open")

// fallbacks are tried in order when the configured opener is missing.
var fallbacks = []string{"xdg-open", "open", "wslview"}

type Opener struct {
	command string
	// start launches the command without waiting for it
	start func(name string, args ...string) error
}

func New(cfg config.UIConfig) *Opener {
	command := cfg.Opener
	if command == "" || (command != "start" && findCommand(command) == "") {
		if found := findCommand(fallbacks...); found != "" {
			command = found
		}
	}
	return &Opener{command: command, start: startDetached}
}

// Command is the program links are passed to.
func (o *Opener) Command() string {
	return o.command
}

// OpenTracker opens the tracker's latest item, or its source page when the
// item has no link.
func (o *Opener) OpenTracker(t *tracker.Tracker) (string, error) {
	link := t.Link()
	if link == "" {
		return "", fmt.Errorf("%w: %s", ErrNoLink, t.DisplayTitle())
	}
	return link, o.Open(link)
}

// Open starts the opener on rawURL. Only http and https URLs are accepted.
func (o *Opener) Open(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open %q: not an http(s) URL", rawURL)
	}
	if o.command == "" {
		return fmt.Errorf("no application found to open URL")
	}

	name, args := o.command, []string{u.String()}
	if name == "start" {
		// start is a cmd.exe builtin; the empty argument is the window title
		name, args = "cmd", []string{"/c", "start", "", u.String()}
	}

	debuglog.Debugf("opening %s with %s", u, o.command)
	if err := o.start(name, args...); err != nil {
		return fmt.Errorf("failed to start %s: %w", o.command, err)
	}
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func findCommand(commands ...string) string {
	for _, cmd := range commands {
		if _, err := exec.LookPath(cmd); err == nil {
			return cmd
		}
	}
	return ""
}

package notify_libnotify

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	Urgency string
	Expire  time.Duration
}

// Notifier shows desktop notifications through notify-send. A soft notifier swallows
// failures so that headless hosts keep watching.
type Notifier struct {
	soft bool
	opt  Options
	// command is replaced in tests.
	command string
}

func New(opt Options) *Notifier     { return &Notifier{opt: opt, command: "notify-send"} }
func NewSoft(opt Options) *Notifier { return &Notifier{soft: true, opt: opt, command: "notify-send"} }

func (n *Notifier) Notify(ctx context.Context, title, body, url string) error {
	cmd := exec.CommandContext(ctx, n.command, n.args(title, body, url)...)
	if err := cmd.Run(); err != nil {
		if n.soft {
			return nil
		}
		return err
	}
	return nil
}

func (n *Notifier) args(title, body, url string) []string {
	if strings.TrimSpace(url) != "" {
		if body == "" {
			body = url
		} else {
			body = body + "\n" + url
		}
	}

	args := []string{"--app-name=devboard"}
	if n.opt.Urgency != "" {
		args = append(args, "--urgency="+n.opt.Urgency)
	}
	if n.opt.Expire > 0 {
		args = append(args, "--expire-time="+strconv.Itoa(int(n.opt.Expire/time.Millisecond)))
	}
	return append(args, title, body)
}

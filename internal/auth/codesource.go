package auth

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sellerlab/wbcompare/internal/common"
)

// ErrCodeTimeout is returned when the operator does not reply within the
// configured window. Distinct from other auth failures so callers can
// tell "nobody answered" apart from "the login itself failed".
var ErrCodeTimeout = common.ErrCodeTimeout

// AdminNotifier delivers the code request to a human operator over a
// side channel (the Telegram bot in production).
type AdminNotifier interface {
	NotifyCodeRequested(ctx context.Context, phone string, requestedAt time.Time) error
}

// CodeSource obtains one-time login codes. With a notifier configured it
// messages the operator and suspends on the pending-code slot; without
// one it falls back to a local console prompt (development only).
type CodeSource struct {
	pending  *PendingCode
	notifier AdminNotifier
	phone    string
	timeout  time.Duration
}

func NewCodeSource(pending *PendingCode, notifier AdminNotifier, phone string, timeout time.Duration) *CodeSource {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &CodeSource{
		pending:  pending,
		notifier: notifier,
		phone:    phone,
		timeout:  timeout,
	}
}

// Pending exposes the rendezvous slot so the side-channel handler can
// resolve it.
func (c *CodeSource) Pending() *PendingCode {
	return c.pending
}

// RequestCode solicits a one-time code and blocks until it arrives, the
// timeout elapses or ctx is cancelled. The pending slot is always
// cleared before returning.
func (c *CodeSource) RequestCode(ctx context.Context) (string, error) {
	if c.notifier == nil {
		slog.Warn("no operator channel configured, using console input")
		return c.promptConsole()
	}

	ch, err := c.pending.arm()
	if err != nil {
		return "", fmt.Errorf("auth code request already in progress: %w", err)
	}
	defer c.pending.disarm()

	if err := c.notifier.NotifyCodeRequested(ctx, c.phone, time.Now()); err != nil {
		return "", fmt.Errorf("cannot send auth code request to admin: %w", err)
	}
	slog.Info("auth code requested from admin", "phone", c.phone, "timeout", c.timeout)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case code := <-ch:
		slog.Info("auth code received", "digits", len(code))
		return strings.TrimSpace(code), nil
	case <-timer.C:
		slog.Error("timeout waiting for auth code", "timeout", c.timeout)
		return "", ErrCodeTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *CodeSource) promptConsole() (string, error) {
	fmt.Print("\nEnter confirmation code: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read code from console: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("empty code received")
	}
	return code, nil
}

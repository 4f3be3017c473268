// Package session guards remote mutations behind a valid write credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

// DefaultPropagationDelay is the wait between sign-in and the re-check.
const DefaultPropagationDelay = 500 * time.Millisecond

// Guard ensures a session exists before any remote write.
type Guard struct {
	provider Provider
	delay    time.Duration
	logger   *slog.Logger
}

// NewGuard constructs a Guard. delay <= 0 uses DefaultPropagationDelay.
func NewGuard(provider Provider, delay time.Duration, logger *slog.Logger) *Guard {
	if delay <= 0 {
		delay = DefaultPropagationDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{provider: provider, delay: delay, logger: logger}
}

// EnsureSession checks for an active session, establishes one when absent,
// waits once for propagation and re-checks. It fails with shared.ErrSession
// when the session is still absent, or shared.ErrConnectivity when the
// provider cannot be reached.
func (g *Guard) EnsureSession(ctx context.Context) error {
	if g == nil || g.provider == nil {
		return fmt.Errorf("session: guard not configured: %w", shared.ErrSession)
	}
	identity, err := g.provider.Current(ctx)
	if err != nil {
		return g.fail(err)
	}
	if identity != nil {
		return nil
	}

	if err := g.provider.SignInAnonymously(ctx); err != nil {
		return g.fail(err)
	}

	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("session: waiting for propagation: %w", ctx.Err())
	case <-timer.C:
	}

	identity, err = g.provider.Current(ctx)
	if err != nil {
		return g.fail(err)
	}
	if identity == nil {
		g.logger.Warn("session still absent after sign-in")
		return shared.ErrSession
	}
	g.logger.Debug("anonymous session established", slog.String("session_id", identity.ID))
	return nil
}

func (g *Guard) fail(err error) error {
	if errors.Is(err, shared.ErrConnectivity) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrSession, err)
}

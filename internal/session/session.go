package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// IdentityStore persists the active identity across restarts.
type IdentityStore interface {
	Load() (userID string, ok bool)
	Save(userID string) error
	Clear() error
}

// Bootstrapper creates a fresh anonymous account when no identity exists.
type Bootstrapper interface {
	CreateAccount(ctx context.Context) (userID string, err error)
}

// BootstrapperFunc adapts a plain function to the Bootstrapper interface.
type BootstrapperFunc func(ctx context.Context) (string, error)

func (f BootstrapperFunc) CreateAccount(ctx context.Context) (string, error) { return f(ctx) }

// Runner services the push subscription for one identity until its context
// is cancelled.
type Runner interface {
	Run(ctx context.Context, userID string) error
}

// Purger empties cached state on logout.
type Purger interface {
	Purge()
}

// Session ties identity, gateway bootstrap and the push reconciler together.
// It guarantees at most one active subscription: switching or clearing the
// identity always cancels the previous reconciler before anything else runs.
type Session struct {
	ids    IdentityStore
	boot   Bootstrapper
	runner Runner
	cache  Purger
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(ids IdentityStore, boot Bootstrapper, runner Runner, cache Purger, logger *zap.Logger) *Session {
	return &Session{
		ids:    ids,
		boot:   boot,
		runner: runner,
		cache:  cache,
		logger: logger,
	}
}

// Start loads the persisted identity, bootstrapping a new account when none
// is usable, and starts the push reconciler for it. It returns the active
// user id.
func (s *Session) Start(ctx context.Context) (string, error) {
	userID, ok := s.ids.Load()
	if !ok {
		created, err := s.boot.CreateAccount(ctx)
		if err != nil {
			return "", fmt.Errorf("bootstrap account: %w", err)
		}
		if err := s.ids.Save(created); err != nil {
			return "", fmt.Errorf("persist identity: %w", err)
		}
		userID = created
		s.logger.Info("bootstrapped new identity", zap.String("user_id", userID))
	} else {
		s.logger.Info("restored identity", zap.String("user_id", userID))
	}

	s.subscribe(ctx, userID)
	return userID, nil
}

// subscribe replaces the active reconciler with one scoped to userID.
func (s *Session) subscribe(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.userID = userID
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if err := s.runner.Run(runCtx, userID); err != nil {
			s.logger.Warn("push reconciler stopped",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}()
}

// stopLocked cancels the active reconciler and waits for it to finish, so no
// stale event can land after the identity changes. Caller holds s.mu.
func (s *Session) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.userID = ""
}

// UserID returns the active identity, if any.
func (s *Session) UserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

// Logout tears the session down: subscription closed, identity cleared,
// cache purged. A later Start bootstraps a fresh identity.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()

	if err := s.ids.Clear(); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	s.cache.Purge()
	s.logger.Info("logged out")
	return nil
}

// Close stops the reconciler without touching persisted identity; used on
// process shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

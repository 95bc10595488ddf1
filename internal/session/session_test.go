package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeIDs struct {
	mu      sync.Mutex
	userID  string
	cleared int
}

func (f *fakeIDs) Load() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID, f.userID != ""
}

func (f *fakeIDs) Save(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
	return nil
}

func (f *fakeIDs) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = ""
	f.cleared++
	return nil
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	live int
}

func (f *fakeRunner) Run(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.runs = append(f.runs, userID)
	f.live++
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.live--
	f.mu.Unlock()
	return nil
}

func (f *fakeRunner) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...), f.live
}

type fakePurger struct {
	mu     sync.Mutex
	purged int
}

func (f *fakePurger) Purge() {
	f.mu.Lock()
	f.purged++
	f.mu.Unlock()
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purged
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestStart_BootstrapsWhenAbsent(t *testing.T) {
	ids := &fakeIDs{}
	runner := &fakeRunner{}
	purger := &fakePurger{}

	boot := BootstrapperFunc(func(ctx context.Context) (string, error) {
		return "u1", nil
	})

	s := New(ids, boot, runner, purger, zaptest.NewLogger(t))
	defer s.Close()

	userID, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u1", userID)

	// The bootstrapped identity is persisted and the subscription started.
	persisted, ok := ids.Load()
	require.True(t, ok)
	require.Equal(t, "u1", persisted)

	waitFor(t, func() bool {
		runs, live := runner.snapshot()
		return len(runs) == 1 && runs[0] == "u1" && live == 1
	})
}

func TestStart_RestoresPersistedIdentity(t *testing.T) {
	ids := &fakeIDs{userID: "u7"}
	runner := &fakeRunner{}

	boot := BootstrapperFunc(func(ctx context.Context) (string, error) {
		t.Fatal("bootstrap must not run when an identity is persisted")
		return "", nil
	})

	s := New(ids, boot, runner, &fakePurger{}, zaptest.NewLogger(t))
	defer s.Close()

	userID, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u7", userID)
}

func TestStart_BootstrapFailure(t *testing.T) {
	ids := &fakeIDs{}
	runner := &fakeRunner{}

	bootErr := errors.New("payments-api down")
	boot := BootstrapperFunc(func(ctx context.Context) (string, error) {
		return "", bootErr
	})

	s := New(ids, boot, runner, &fakePurger{}, zaptest.NewLogger(t))

	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, bootErr)

	// Nothing persisted, nothing subscribed.
	_, ok := ids.Load()
	require.False(t, ok)
	runs, _ := runner.snapshot()
	require.Empty(t, runs)
}

func TestLogout_TearsEverythingDown(t *testing.T) {
	ids := &fakeIDs{userID: "u1"}
	runner := &fakeRunner{}
	purger := &fakePurger{}

	s := New(ids, nil, runner, purger, zaptest.NewLogger(t))

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { _, live := runner.snapshot(); return live == 1 })

	require.NoError(t, s.Logout())

	// Subscription cancelled, identity cleared, cache purged.
	_, live := runner.snapshot()
	require.Equal(t, 0, live)
	_, ok := ids.Load()
	require.False(t, ok)
	require.Equal(t, 1, purger.count())

	_, active := s.UserID()
	require.False(t, active)
}

func TestStart_ReplacesPreviousSubscription(t *testing.T) {
	ids := &fakeIDs{userID: "u1"}
	runner := &fakeRunner{}

	s := New(ids, nil, runner, &fakePurger{}, zaptest.NewLogger(t))
	defer s.Close()

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { _, live := runner.snapshot(); return live == 1 })

	// A new identity appears (say, after logout on another surface); the
	// old subscription must be gone before the new one starts.
	require.NoError(t, ids.Save("u2"))
	userID, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u2", userID)

	waitFor(t, func() bool {
		runs, live := runner.snapshot()
		return len(runs) == 2 && runs[1] == "u2" && live == 1
	})
}

func TestUserID(t *testing.T) {
	ids := &fakeIDs{userID: "u1"}
	s := New(ids, nil, &fakeRunner{}, &fakePurger{}, zaptest.NewLogger(t))
	defer s.Close()

	_, active := s.UserID()
	require.False(t, active)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	userID, active := s.UserID()
	require.True(t, active)
	require.Equal(t, "u1", userID)
}

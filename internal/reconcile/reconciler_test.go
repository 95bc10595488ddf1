package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appmarket/orders-client/internal/config"
	"github.com/appmarket/orders-client/internal/domain"
	"github.com/appmarket/orders-client/internal/observability"
	"github.com/appmarket/orders-client/internal/stream"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPolicy() config.Stream {
	return config.Stream{
		Retry: config.Retry{
			Attempts: 0, // reconnect forever
			Base:     time.Millisecond,
			Max:      5 * time.Millisecond,
		},
		Breaker: config.Breaker{
			Threshold:   100,
			OpenTimeout: time.Second,
			MaxHalfOpen: 1,
		},
	}
}

func TestRun_OrderUpdateInvalidatesBothDomains(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	invalidated := make(chan struct{})
	inv.EXPECT().
		Invalidate(domain.OrderTag("o1"), domain.OrderListTag(), domain.AccountTag("u1")).
		Do(func(...domain.Tag) { close(invalidated) })

	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, userID string, handle func(stream.Event)) error {
			handle(stream.Event{Name: "connected", Data: []byte(`{"message":"hi","user_id":"u1"}`)})
			handle(stream.Event{Name: "order-update", Data: []byte(`{"id":"o1","userID":"u1","status":"paid"}`)})
			<-ctx.Done()
			return ctx.Err()
		})

	r := New(sub, inv, testPolicy(), zaptest.NewLogger(t), observability.NewNoop())
	require.Equal(t, Disconnected, r.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "u1") }()

	select {
	case <-invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("order-update did not reach the cache")
	}
	require.Equal(t, Connected, r.State())

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, Disconnected, r.State())
}

func TestRun_MalformedAndUnknownEventsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	// No Invalidate expectations: any call fails the test.
	delivered := make(chan struct{})
	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, userID string, handle func(stream.Event)) error {
			handle(stream.Event{Name: "order-update", Data: []byte(`{broken`)})
			handle(stream.Event{Name: "order-update", Data: []byte(`{"userID":"u1"}`)}) // missing id
			handle(stream.Event{Name: "totally-new-event", Data: []byte(`{}`)})
			close(delivered)
			<-ctx.Done()
			return ctx.Err()
		})

	r := New(sub, inv, testPolicy(), zaptest.NewLogger(t), observability.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "u1") }()

	<-delivered
	cancel()
	require.NoError(t, <-done)
}

func TestRun_OwnerFallsBackToSubscriptionUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	invalidated := make(chan struct{})
	inv.EXPECT().
		Invalidate(domain.OrderTag("o9"), domain.OrderListTag(), domain.AccountTag("u1")).
		Do(func(...domain.Tag) { close(invalidated) })

	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, userID string, handle func(stream.Event)) error {
			handle(stream.Event{Name: "order-update", Data: []byte(`{"id":"o9","status":"paid"}`)})
			<-ctx.Done()
			return ctx.Err()
		})

	r := New(sub, inv, testPolicy(), zaptest.NewLogger(t), observability.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "u1") }()

	<-invalidated
	cancel()
	require.NoError(t, <-done)
}

func TestRun_ReconnectsAfterStreamFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	var attempts atomic.Int32
	reconnected := make(chan struct{})
	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).DoAndReturn(
		func(ctx context.Context, userID string, handle func(stream.Event)) error {
			switch attempts.Add(1) {
			case 1, 2:
				return errors.New("connection reset")
			default:
				close(reconnected)
				handle(stream.Event{Name: "connected"})
				<-ctx.Done()
				return ctx.Err()
			}
		}).Times(3)

	metrics := observability.NewInmem(8)
	r := New(sub, inv, testPolicy(), zaptest.NewLogger(t), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "u1") }()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not reconnect")
	}
	cancel()
	require.NoError(t, <-done)

	_, _, _, reconnects, _ := metrics.Totals()
	require.Equal(t, 2, reconnects)
}

func TestRun_GivesUpWhenAttemptBudgetSpent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	connErr := errors.New("connection refused")
	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).Return(connErr).Times(3)

	policy := testPolicy()
	policy.Retry.Attempts = 3

	r := New(sub, inv, policy, zaptest.NewLogger(t), observability.NewNoop())

	err := r.Run(context.Background(), "u1")
	require.ErrorIs(t, err, connErr)
	require.Equal(t, Disconnected, r.State())
}

func TestRun_NoInvalidationAfterTeardown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	ctx, cancel := context.WithCancel(context.Background())

	// The subscriber delivers an event after cancellation, simulating a
	// late in-flight frame. It must not reach the cache.
	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).DoAndReturn(
		func(subCtx context.Context, userID string, handle func(stream.Event)) error {
			<-subCtx.Done()
			handle(stream.Event{Name: "order-update", Data: []byte(`{"id":"o1","userID":"u1","status":"paid"}`)})
			return subCtx.Err()
		})

	r := New(sub, inv, testPolicy(), zaptest.NewLogger(t), observability.NewNoop())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "u1") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRun_BreakerHoldsAfterRepeatedFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := NewMockInvalidator(ctrl)
	sub := NewMockSubscriber(ctrl)

	// Threshold 2 with a long open window: the third retry must be skipped
	// by the breaker instead of dialing again.
	policy := testPolicy()
	policy.Retry.Attempts = 3
	policy.Breaker.Threshold = 2
	policy.Breaker.OpenTimeout = time.Minute

	sub.EXPECT().Subscribe(gomock.Any(), "u1", gomock.Any()).
		Return(errors.New("dial error")).Times(2)

	r := New(sub, inv, policy, zaptest.NewLogger(t), observability.NewNoop())

	err := r.Run(context.Background(), "u1")
	require.Error(t, err)
}

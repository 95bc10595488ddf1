package main

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/appmarket/orders-client/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// store keeps all backend state in memory. Good enough for local development
// against the real API surface.
type store struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	byUser   map[string][]string
	accounts map[string]*domain.Account
}

func newStore() *store {
	return &store{
		orders:   make(map[string]*domain.Order),
		byUser:   make(map[string][]string),
		accounts: make(map[string]*domain.Account),
	}
}

func (s *store) createAccount() domain.Account {
	now := time.Now().UTC()
	account := domain.Account{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.accounts[account.UserID] = &account
	s.mu.Unlock()
	return account
}

func (s *store) account(userID string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, false
	}
	return *account, true
}

func (s *store) topUp(userID string, amount float64) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, false
	}
	account.Balance += amount
	account.UpdatedAt = time.Now().UTC()
	return *account, true
}

// debit withdraws amount when the balance covers it.
func (s *store) debit(userID string, amount float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok || account.Balance < amount {
		return false
	}
	account.Balance -= amount
	account.UpdatedAt = time.Now().UTC()
	return true
}

func (s *store) createOrder(userID string) domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    math.Round((100+rand.Float64()*900)*100) / 100,
		Currency:  "USD",
		Status:    domain.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.orders[order.ID] = &order
	s.byUser[userID] = append(s.byUser[userID], order.ID)
	s.mu.Unlock()
	return order
}

func (s *store) order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *order, true
}

func (s *store) userOrders(userID string) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byUser[userID]
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *s.orders[id])
	}
	return orders
}

func (s *store) updateOrder(id string, mutate func(*domain.Order)) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	mutate(order)
	order.UpdatedAt = time.Now().UTC()
	return *order, true
}

// lifecycle drives a created order through the payment flow the real
// backends run asynchronously, publishing an order-update on every
// transition.
type lifecycle struct {
	store  *store
	hub    *hub
	step   time.Duration
	logger *zap.Logger
}

func (l *lifecycle) run(order domain.Order) {
	go func() {
		time.Sleep(l.step)
		updated, ok := l.store.updateOrder(order.ID, func(o *domain.Order) {
			o.Status = domain.StatusPaymentPending
		})
		if !ok {
			return
		}
		l.hub.publish(updated)

		time.Sleep(l.step)
		if l.store.debit(order.UserID, order.Amount) {
			updated, _ = l.store.updateOrder(order.ID, func(o *domain.Order) {
				o.Status = domain.StatusPaid
				o.PaymentID = uuid.NewString()
			})
			l.hub.publish(updated)

			time.Sleep(l.step)
			updated, _ = l.store.updateOrder(order.ID, func(o *domain.Order) {
				o.Status = domain.StatusCompleted
			})
			l.hub.publish(updated)
			return
		}

		updated, _ = l.store.updateOrder(order.ID, func(o *domain.Order) {
			o.Status = domain.StatusPaymentFailed
			o.ErrorReason = "insufficient funds"
		})
		l.hub.publish(updated)
		l.logger.Info("payment failed",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Float64("amount", order.Amount),
		)
	}()
}

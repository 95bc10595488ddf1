package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/appmarket/orders-client/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// server exposes the orders-api and payments-api surfaces the client
// consumes.
type server struct {
	store     *store
	hub       *hub
	lifecycle *lifecycle
	logger    *zap.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Route("/orders-api", func(r chi.Router) {
		r.Post("/orders", s.createOrder)
		r.Get("/orders/stream", s.hub.handleStream)
		r.Get("/orders/{id}", s.getOrder)
		r.Get("/orders/user/{userID}", s.userOrders)
		r.Get("/info", s.info)
	})
	r.Route("/payments-api", func(r chi.Router) {
		r.Post("/accounts", s.createAccount)
		r.Get("/accounts/{userID}", s.getAccount)
		r.Post("/accounts/{userID}/topup", s.topUp)
		r.Get("/info", s.info)
	})
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, ok := s.store.account(req.UserID); !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	order := s.store.createOrder(req.UserID)
	s.lifecycle.run(order)
	writeJSON(w, http.StatusCreated, order)
}

func (s *server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.store.order(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *server) userOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.userOrders(chi.URLParam(r, "userID")))
}

func (s *server) createAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.store.createAccount())
}

func (s *server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := s.store.account(chi.URLParam(r, "userID"))
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *server) topUp(w http.ResponseWriter, r *http.Request) {
	var req domain.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	account, ok := s.store.topUp(chi.URLParam(r, "userID"), req.Amount)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/appmarket/orders-client/internal/cache"
	"github.com/appmarket/orders-client/internal/config"
	"github.com/appmarket/orders-client/internal/domain"
	"github.com/appmarket/orders-client/internal/gateway"
	"github.com/appmarket/orders-client/internal/identity"
	"github.com/appmarket/orders-client/internal/observability"
	"github.com/appmarket/orders-client/internal/reconcile"
	"github.com/appmarket/orders-client/internal/session"
	"github.com/appmarket/orders-client/internal/stream"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics := observability.NewInmem(200)

	resources, err := cache.New(cfg.CacheCap, logger, metrics)
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}

	gw := gateway.New(cfg.BaseURL, cfg.HTTPTimeout, resources, logger, metrics)
	ids := identity.New(cfg.StateFile, logger)
	sse := stream.NewClient(cfg.BaseURL, logger)
	rec := reconcile.New(sse, resources, cfg.Stream, logger, metrics)

	boot := session.BootstrapperFunc(func(ctx context.Context) (string, error) {
		account, err := gw.CreateAccount(ctx)
		if err != nil {
			return "", err
		}
		return account.UserID, nil
	})
	sess := session.New(ids, boot, rec, resources, logger)
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userID, err := sess.Start(ctx)
	if err != nil {
		logger.Fatal("session start failed", zap.Error(err))
	}
	fmt.Printf("session ready, user %s (api %s)\n", userID, cfg.BaseURL)
	fmt.Println(`commands: orders | balance | order <id> | create | topup <amount> | logout | quit`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := dispatch(ctx, sess, gw, line); quit {
				return
			}
		}
	}
}

func dispatch(ctx context.Context, sess *session.Session, gw *gateway.Gateway, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	userID, active := sess.UserID()

	switch fields[0] {
	case "quit", "exit":
		return true

	case "logout":
		if err := sess.Logout(); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("logged out; bootstrapping a fresh session")
		newID, err := sess.Start(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("new user:", newID)

	case "orders":
		if !active {
			fmt.Println("no active session")
			return false
		}
		orders, err := gw.UserOrders(cmdCtx, userID)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if len(orders) == 0 {
			fmt.Println("no orders")
			return false
		}
		for _, o := range orders {
			printOrder(o)
		}

	case "order":
		if len(fields) != 2 {
			fmt.Println("usage: order <id>")
			return false
		}
		order, err := gw.Order(cmdCtx, fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		printOrder(*order)

	case "create":
		if !active {
			fmt.Println("no active session")
			return false
		}
		order, err := gw.CreateOrder(cmdCtx, userID)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("created:")
		printOrder(*order)

	case "balance":
		if !active {
			fmt.Println("no active session")
			return false
		}
		account, err := gw.Account(cmdCtx, userID)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("balance: %.2f\n", account.Balance)

	case "topup":
		if !active {
			fmt.Println("no active session")
			return false
		}
		if len(fields) != 2 {
			fmt.Println("usage: topup <amount>")
			return false
		}
		amount, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Println("bad amount:", fields[1])
			return false
		}
		account, err := gw.TopUp(cmdCtx, userID, amount)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("balance: %.2f\n", account.Balance)

	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

func printOrder(o domain.Order) {
	extra := ""
	if o.PaymentID != "" {
		extra = "  payment=" + o.PaymentID
	}
	if o.ErrorReason != "" {
		extra += "  reason=" + o.ErrorReason
	}
	fmt.Printf("%s  %-15s  %.2f %s%s\n", o.ID, o.Status, o.Amount, o.Currency, extra)
}

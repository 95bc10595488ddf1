package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Event is one server-sent event. Name defaults to "message" when the server
// omits the event field.
type Event struct {
	Name string
	Data []byte
}

// ErrStreamClosed is returned when the server ends an accepted stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// Client consumes the orders-api event stream. One Subscribe call owns one
// connection; reconnect policy belongs to the caller.
type Client struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	// No client timeout: the connection is expected to stay open.
	return &Client{
		base:   baseURL,
		client: &http.Client{},
		logger: logger,
	}
}

// Subscribe opens the stream scoped to userID and calls handle for every
// decoded event until the connection drops or ctx is cancelled. It always
// returns a non-nil error describing why the stream ended.
func (c *Client) Subscribe(ctx context.Context, userID string, handle func(Event)) error {
	target := c.base + "/orders-api/orders/stream?user_id=" + url.QueryEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("stream handshake: unexpected status %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("stream handshake: unexpected content type %q", ct)
	}

	c.logger.Info("event stream connected", zap.String("user_id", userID))

	err = c.read(res.Body, handle)
	// Cancellation surfaces as a read error on the closed body; report the
	// caller's reason instead.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// read decodes the text/event-stream wire format: field lines accumulate
// into an event, a blank line dispatches it. Unknown fields and comment
// lines are skipped, so protocol extensions never kill the connection.
func (c *Client) read(r io.Reader, handle func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		name string
		data [][]byte
	)
	for scanner.Scan() {
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))

		if len(line) == 0 {
			if len(data) > 0 || name != "" {
				ev := Event{Name: name, Data: bytes.Join(data, []byte("\n"))}
				if ev.Name == "" {
					ev.Name = "message"
				}
				handle(ev)
			}
			name = ""
			data = nil
			continue
		}

		if line[0] == ':' {
			continue // comment / keep-alive
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))

		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			d := make([]byte, len(value))
			copy(d, value)
			data = append(data, d)
		default:
			// id, retry and anything newer: tolerated, unused.
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return ErrStreamClosed
}

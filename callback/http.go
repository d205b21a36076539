package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/sony/gobreaker"
)

// HTTPDeliverer posts notifications as JSON. Each target host gets its own
// circuit breaker so a dead consumer stops costing a full timeout per attempt.
type HTTPDeliverer struct {
	client *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &HTTPDeliverer{client: client, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (h *HTTPDeliverer) Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	u, err := url.Parse(target.Address)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid callback url %q", target.Address)
	}
	_, err = h.breaker(u.Host).Execute(func() (interface{}, error) {
		return nil, h.post(ctx, target, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("callback host %s unavailable: %w", u.Host, err)
	}
	return err
}

func (h *HTTPDeliverer) breaker(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	cb, ok := h.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		h.breakers[host] = cb
	}
	return cb
}

func (h *HTTPDeliverer) post(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	method := target.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, target.Address, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Oracle-Query-Id", strconv.FormatUint(n.QueryID, 10))
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback %s returned status %d", target.Address, resp.StatusCode)
	}
	return nil
}

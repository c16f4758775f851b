// Package client is a remote replica of a hub's tree. It bootstraps from a
// snapshot, follows the change stream, and forwards commands to the hub.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/alexanderramin/todotree/internal/tree"
	"github.com/gorilla/websocket"
)

var _ service.TodoService = (*Client)(nil)

// Client implements service.TodoService against a hub. Reads are served
// from the local replica once Connect has succeeded, and from the hub
// before that. While the stream runs, a command returns once the replica
// has applied the command's own change from the stream, so a caller reads
// its write and the replica still applies changes in hub order.
type Client struct {
	base        string
	http        *http.Client
	dialer      *websocket.Dialer
	logger      *slog.Logger
	onChange    func(domain.ChangeSet)
	retry       time.Duration
	echoTimeout time.Duration

	mu        sync.Mutex
	tree      *tree.Manager
	seq       uint64
	advanced  chan struct{}
	streaming bool

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnChange registers fn to run after every streamed ChangeSet is
// applied, and with an empty ChangeSet after a resync. fn runs on the
// stream goroutine without the replica lock held.
func WithOnChange(fn func(domain.ChangeSet)) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

// WithRetryInterval sets the first reconnect delay. It doubles up to a
// minute while the hub stays down.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retry = d
	}
}

// New creates a client for the hub at baseURL, such as
// "http://127.0.0.1:7878".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
		dialer:      &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:      slog.New(slog.DiscardHandler),
		retry:       500 * time.Millisecond,
		echoTimeout: 10 * time.Second,
		advanced:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Snapshot(ctx context.Context) ([]domain.Record, error) {
	c.mu.Lock()
	if c.tree != nil {
		defer c.mu.Unlock()
		return c.tree.Snapshot(), nil
	}
	c.mu.Unlock()

	var records []domain.Record
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Get(ctx context.Context, id string) (domain.Record, error) {
	c.mu.Lock()
	if c.tree != nil {
		defer c.mu.Unlock()
		t, err := c.tree.GetTodo(id)
		if err != nil {
			return domain.Record{}, err
		}
		return t.Record(), nil
	}
	c.mu.Unlock()

	var rec domain.Record
	if err := c.do(ctx, http.MethodGet, "/api/todos/"+url.PathEscape(id), nil, &rec); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (c *Client) Upsert(ctx context.Context, records []domain.Record) (domain.ChangeSet, error) {
	if records == nil {
		records = []domain.Record{}
	}
	return c.command(ctx, http.MethodPost, "/api/todos", records)
}

func (c *Client) Delete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.command(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), nil)
}

func (c *Client) Start(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.action(ctx, id, "start")
}

func (c *Client) Stop(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.action(ctx, id, "stop")
}

func (c *Client) Complete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.action(ctx, id, "complete")
}

func (c *Client) UnComplete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.action(ctx, id, "uncomplete")
}

func (c *Client) AddChild(ctx context.Context, parentID string) (domain.ChangeSet, error) {
	return c.action(ctx, parentID, "children")
}

func (c *Client) GoNext(ctx context.Context, id string) (domain.ChangeSet, error) {
	return c.action(ctx, id, "next")
}

func (c *Client) action(ctx context.Context, id, name string) (domain.ChangeSet, error) {
	return c.command(ctx, http.MethodPost, "/api/todos/"+url.PathEscape(id)+"/"+name, nil)
}

// command sends a mutating request. With the stream running, the result
// reaches the replica through the stream: applying the response directly
// could undo a newer change the stream already delivered. Without a
// stream the response is applied as is.
func (c *Client) command(ctx context.Context, method, path string, body any) (domain.ChangeSet, error) {
	var cs domain.ChangeSet
	seq, err := c.call(ctx, method, path, body, &cs)
	if err != nil {
		return domain.ChangeSet{}, err
	}
	if cs.IsEmpty() {
		return cs, nil
	}
	if err := c.awaitSeq(ctx, seq, cs); err != nil {
		return cs, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return cs, nil
}

// awaitSeq blocks until the replica has applied hub sequence number seq.
// If no stream is running it applies cs instead. A hub that is slow to
// echo is logged, not reported: the hub holds the change either way.
func (c *Client) awaitSeq(ctx context.Context, seq uint64, cs domain.ChangeSet) error {
	timeout := time.NewTimer(c.echoTimeout)
	defer timeout.Stop()

	for {
		c.mu.Lock()
		if c.streaming && seq > 0 && c.seq >= seq {
			c.mu.Unlock()
			return nil
		}
		if !c.streaming || seq == 0 {
			err := c.applyLocked(cs)
			c.mu.Unlock()
			return err
		}
		advanced := c.advanced
		c.mu.Unlock()

		select {
		case <-advanced:
		case <-timeout.C:
			c.logger.Warn("hub has not echoed change yet", "seq", seq)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) applyLocked(cs domain.ChangeSet) error {
	if c.tree == nil {
		return nil
	}
	if _, err := c.tree.ApplyChange(cs); err != nil {
		return fmt.Errorf("applying locally: %w", err)
	}
	return nil
}

// signalLocked wakes every awaitSeq. c.mu must be held.
func (c *Client) signalLocked() {
	close(c.advanced)
	c.advanced = make(chan struct{})
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.call(ctx, method, path, body, out)
	return err
}

// call performs a request and returns the hub sequence number from the
// response, or zero when the hub sent none.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (uint64, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorBody
		msg := string(data)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return 0, fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
		case http.StatusBadRequest:
			return 0, fmt.Errorf("%s: %w", msg, domain.ErrMalformedRecord)
		default:
			return 0, fmt.Errorf("hub returned status %d: %s", resp.StatusCode, msg)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	seq, _ := strconv.ParseUint(resp.Header.Get(hub.SeqHeader), 10, 64)
	return seq, nil
}

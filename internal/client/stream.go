package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/tree"
	"github.com/gorilla/websocket"
)

const maxRetry = time.Minute

// Connect builds the local replica and starts following the hub. The
// stream is dialed before the snapshot is fetched, so every change made
// after the snapshot is already queued on the socket. Frames numbered at
// or below the snapshot's sequence number are skipped.
//
// After Connect returns, lost streams are re-established in the background
// until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	conn, err := c.sync(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.streaming = true
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

// Close stops the stream and waits for it to finish. The replica keeps
// its last state.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (c *Client) streamURL() (string, error) {
	switch {
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/ws", nil
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/ws", nil
	default:
		return "", fmt.Errorf("hub url %q must start with http:// or https://", c.base)
	}
}

// sync dials the stream, then replaces the replica with a fresh snapshot.
func (c *Client) sync(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := c.streamURL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dialing %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrUnavailable, wsURL, err)
	}

	var records []domain.Record
	seq, err := c.call(ctx, http.MethodGet, "/api/todos", nil, &records)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	m, err := tree.NewManagerFromRecords(records)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("building replica: %w", err)
	}

	c.mu.Lock()
	c.tree = m
	c.seq = seq
	c.signalLocked()
	c.mu.Unlock()
	c.logger.Info("replica synced", "hub", c.base, "todos", m.Len())
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.streaming = false
		c.signalLocked()
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		err := c.follow(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("change stream lost", "error", err)

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
		c.notify(domain.ChangeSet{})
	}
}

func (c *Client) reconnect(ctx context.Context) *websocket.Conn {
	delay := c.retry
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		conn, err := c.sync(ctx)
		if err == nil {
			return conn
		}
		c.logger.Warn("resync failed", "error", err, "retry_in", delay)
		delay = min(delay*2, maxRetry)
	}
}

// follow applies frames until the connection fails or ctx ends.
func (c *Client) follow(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f hub.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("skipping malformed frame", "error", err)
			continue
		}
		if f.Type != hub.FrameChange || f.Change == nil {
			continue
		}

		c.mu.Lock()
		if f.Seq != 0 && f.Seq <= c.seq {
			c.mu.Unlock()
			continue
		}
		applied, err := c.tree.ApplyChange(*f.Change)
		if err == nil && f.Seq != 0 {
			c.seq = f.Seq
			c.signalLocked()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("applying streamed change: %w", err)
		}
		if !applied.IsEmpty() {
			c.notify(*f.Change)
		}
	}
}

func (c *Client) notify(cs domain.ChangeSet) {
	if c.onChange != nil {
		c.onChange(cs)
	}
}

// Connected reports whether reads are served from the local replica.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree != nil
}

// Package remote subscribes to a server's websocket feed.
//
// The client keeps the subscription alive across network failures: it
// reconnects with exponential backoff and, while offline, re-serves the
// last snapshot it saw marked as cached.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"despesas/internal/feed"
	"despesas/internal/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 70 * time.Second

	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Client is a feed.Feed backed by a remote server.
type Client struct {
	endpoint   *url.URL
	token      string
	dialer     *websocket.Dialer
	cache      Cache
	logger     *log.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// Option customizes a Client.
type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentFeed) }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(lo, hi time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = lo, hi }
}

// New builds a client for the server at serverURL (http or https).
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/feed"

	c := &Client{
		endpoint:   u,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     log.Discard(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe starts the background connection. A cached snapshot, if any,
// is delivered first with FromCache set.
func (c *Client) Subscribe(ctx context.Context, q feed.Query) (*feed.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := feed.NewSubscription(uuid.NewString(), cancel)

	s := &session{client: c, sub: sub, query: q}
	if c.cache != nil {
		cached, err := c.cache.Load()
		if err != nil {
			c.logger.Warn("Ignoring unreadable snapshot cache", log.FieldError, err)
		} else if cached != nil {
			s.last = cached
			s.offline = true
			sub.Publish(*cached)
		}
	}

	go func() {
		s.run(ctx)
		// Keep a refused subscription open so its error is still delivered.
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// session is one subscription's connection state.
type session struct {
	client *Client
	sub    *feed.Subscription
	query  feed.Query

	mu      sync.Mutex
	last    *feed.Snapshot
	offline bool
	failed  bool // an "other" error has been reported for this outage
}

func (s *session) run(ctx context.Context) {
	c := s.client
	attempt := 0
	for {
		conn, resp, err := c.dial(ctx, s.query)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			if fe := handshakeError(resp); fe != nil {
				c.logger.Warn("Feed refused by server", log.FieldError, fe)
				s.sub.Fail(fe)
				return
			}
			s.goOffline(err)
			if !sleep(ctx, backoff(attempt, c.minBackoff, c.maxBackoff)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		fatal, err := s.consume(ctx, conn)
		conn.Close()
		if fatal || ctx.Err() != nil {
			return
		}
		s.goOffline(err)
		if !sleep(ctx, backoff(attempt, c.minBackoff, c.maxBackoff)) {
			return
		}
		attempt++
	}
}

func (c *Client) dial(ctx context.Context, q feed.Query) (*websocket.Conn, *http.Response, error) {
	u := *c.endpoint
	params := u.Query()
	params.Set("collection", q.Collection)
	if q.OrderBy != "" {
		params.Set("order", q.OrderBy)
	}
	u.RawQuery = params.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return c.dialer.DialContext(ctx, u.String(), header)
}

// consume reads frames until the connection fails. fatal reports an
// error the server will keep returning, so reconnecting is pointless.
func (s *session) consume(ctx context.Context, conn *websocket.Conn) (fatal bool, err error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		var msg feed.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return false, err
		}
		ev, err := msg.Event()
		if err != nil {
			s.client.logger.Warn("Skipping malformed feed message", log.FieldError, err)
			continue
		}
		if ev.Err != nil {
			s.sub.Fail(ev.Err)
			if ev.Err.Kind != feed.KindOther {
				return true, ev.Err
			}
			continue
		}
		s.online(*ev.Snapshot)
	}
}

func (s *session) online(snap feed.Snapshot) {
	s.mu.Lock()
	s.last = &snap
	s.offline = false
	s.failed = false
	s.mu.Unlock()

	if !snap.FromCache && s.client.cache != nil {
		if err := s.client.cache.Save(snap); err != nil {
			s.client.logger.Warn("Snapshot cache write failed", log.FieldError, err)
		}
	}
	s.sub.Publish(snap)
}

// goOffline re-serves the last snapshot as cached once per outage, or
// reports a connection error when there is nothing to show.
func (s *session) goOffline(cause error) {
	s.mu.Lock()
	last, wasOffline, failed := s.last, s.offline, s.failed
	if last != nil {
		s.offline = true
	} else {
		s.failed = true
	}
	s.mu.Unlock()

	s.client.logger.Warn("Feed connection lost", log.FieldError, cause)
	switch {
	case last != nil && !wasOffline:
		cached := *last
		cached.FromCache = true
		s.sub.Publish(cached)
	case last == nil && !failed:
		s.sub.Fail(feed.NewError(feed.KindOther, cause))
	}
}

// handshakeError maps refused upgrades onto feed error kinds.
func handshakeError(resp *http.Response) *feed.Error {
	if resp == nil {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return feed.NewError(feed.KindPermissionDenied, fmt.Errorf("server refused feed: %s", resp.Status))
	case http.StatusNotFound:
		return feed.NewError(feed.KindNotFound, fmt.Errorf("server has no such collection: %s", resp.Status))
	}
	return nil
}

// backoff doubles from lo per attempt and is capped at hi.
func backoff(attempt int, lo, hi time.Duration) time.Duration {
	d := lo
	for i := 0; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package lichess

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ErrFeedClosed is returned by Stream.Next once the host ends the feed.
var ErrFeedClosed = errors.New("feed closed")

// Stream yields one JSON document per call. Keep-alive blank lines are
// skipped.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

const maxFeedLine = 1024 * 1024

// OpenEvents opens the account's lobby feed.
func (c *Client) OpenEvents(ctx context.Context) (Stream, error) {
	return c.open(ctx, "/api/stream/event")
}

// OpenGame opens the feed of a single game.
func (c *Client) OpenGame(ctx context.Context, gameID string) (Stream, error) {
	return c.open(ctx, "/api/bot/game/stream/"+url.PathEscape(gameID))
}

func (c *Client) open(ctx context.Context, path string) (Stream, error) {
	if c.wsURL != "" {
		return c.dialWS(ctx, path)
	}
	return c.openNDJSON(ctx, path)
}

// feedConn holds the single connection of one feed so cancellation can
// unblock a pending read without touching the response.
type feedConn struct {
	dial fasthttp.DialFunc

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func (f *feedConn) Dial(addr string) (net.Conn, error) {
	conn, err := f.dial(addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	f.conn = conn
	return conn, nil
}

func (f *feedConn) Close() {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// ndjsonStream must be closed by the goroutine that calls Next.
type ndjsonStream struct {
	client  *fasthttp.Client
	conn    *feedConn
	resp    *fasthttp.Response
	scanner *bufio.Scanner
	stop    func() bool
	closed  bool
}

func (c *Client) openNDJSON(ctx context.Context, path string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fc := &feedConn{dial: c.streamDial}
	client := &fasthttp.Client{
		Dial:                      fc.Dial,
		WriteTimeout:              10 * time.Second,
		StreamResponseBody:        true,
		ReadBufferSize:            16 * 1024,
		MaxConnsPerHost:           1,
		MaxIdemponentCallAttempts: 1,
	}
	stop := context.AfterFunc(ctx, fc.Close)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/x-ndjson")
	c.authorize(req)

	fail := func(err error) (Stream, error) {
		stop()
		fasthttp.ReleaseResponse(resp)
		client.CloseIdleConnections()
		fc.Close()
		return nil, err
	}
	if err := client.Do(req, resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fail(fmt.Errorf("open %s: %w", path, err))
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		err := &StatusError{Op: "stream", Status: status, Body: truncate(string(resp.Body()), 512)}
		_ = resp.CloseBodyStream()
		return fail(err)
	}

	body := resp.BodyStream()
	if body == nil {
		body = bytes.NewReader(append([]byte(nil), resp.Body()...))
	}
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFeedLine)

	c.logger.Info("feed_opened", zap.String("path", path))
	return &ndjsonStream{client: client, conn: fc, resp: resp, scanner: sc, stop: stop}, nil
}

func (s *ndjsonStream) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrFeedClosed
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedClosed, err)
	}
	return nil, ErrFeedClosed
}

func (s *ndjsonStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	err := s.resp.CloseBodyStream()
	fasthttp.ReleaseResponse(s.resp)
	s.resp = nil
	s.client.CloseIdleConnections()
	s.conn.Close()
	return err
}

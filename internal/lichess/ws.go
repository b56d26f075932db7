package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsStream carries the same documents as the NDJSON feeds, one JSON message
// per frame.
type wsStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	pingInterval time.Duration
	wg           sync.WaitGroup
	once         sync.Once
}

func (c *Client) dialWS(ctx context.Context, path string) (Stream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	target := c.wsURL + path
	conn, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.wsHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	conn.SetReadLimit(maxFeedLine)

	sctx, scancel := context.WithCancel(ctx)
	s := &wsStream{conn: conn, ctx: sctx, cancel: scancel, logger: c.logger, pingInterval: 30 * time.Second}
	s.wg.Add(1)
	go s.pingLoop()
	c.logger.Info("feed_opened", zap.String("path", path), zap.String("transport", "ws"))
	return s, nil
}

func (c *Client) wsHeaders() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (s *wsStream) Next() ([]byte, error) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(s.ctx, s.conn, &raw); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || s.ctx.Err() != nil {
				return nil, ErrFeedClosed
			}
			return nil, fmt.Errorf("%w: %v", ErrFeedClosed, err)
		}
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		return []byte(raw), nil
	}
}

func (s *wsStream) pingLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
			err := s.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				s.logger.Warn("feed_ping_failed", zap.Error(err))
				_ = s.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "")
		s.wg.Wait()
	})
	return err
}

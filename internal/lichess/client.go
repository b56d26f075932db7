package lichess

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// StatusError is a non-2xx answer from an action endpoint.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lichess api error: op=%s status=%d body=%s", e.Op, e.Status, e.Body)
}

// Client talks to the host's Bot API. Actions are single attempts; feeds are
// long-lived streamed responses.
type Client struct {
	baseURL string
	token   string
	wsURL   string

	http       *fasthttp.Client
	streamDial fasthttp.DialFunc

	defaultTimeout time.Duration
	dryRun         bool
	logger         *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithDial replaces the dialer of actions and HTTP feeds.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) {
		c.http.Dial = dial
		c.streamDial = dial
	}
}

// WithWebSocketFeeds routes feeds over WebSocket to wsURL instead of HTTP.
func WithWebSocketFeeds(wsURL string) Option {
	return func(c *Client) { c.wsURL = strings.TrimRight(wsURL, "/") }
}

// WithDryRun logs actions instead of posting them. Feeds are still read.
func WithDryRun(dry bool) Option {
	return func(c *Client) { c.dryRun = dry }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 16,
		},
		streamDial:     fasthttp.Dial,
		defaultTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Accept(ctx context.Context, challengeID string) error {
	return c.post(ctx, "accept", "/api/challenge/"+url.PathEscape(challengeID)+"/accept", nil)
}

func (c *Client) Decline(ctx context.Context, challengeID string) error {
	return c.post(ctx, "decline", "/api/challenge/"+url.PathEscape(challengeID)+"/decline", nil)
}

func (c *Client) Move(ctx context.Context, gameID, move string) error {
	return c.post(ctx, "move", "/api/bot/game/"+url.PathEscape(gameID)+"/move/"+url.PathEscape(move), nil)
}

func (c *Client) Abort(ctx context.Context, gameID string) error {
	return c.post(ctx, "abort", "/api/bot/game/"+url.PathEscape(gameID)+"/abort", nil)
}

// Chat posts text to the given room ("player" or "spectator").
func (c *Client) Chat(ctx context.Context, gameID, room, text string) error {
	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("room", room)
	form.Set("text", text)
	return c.post(ctx, "chat", "/api/bot/game/"+url.PathEscape(gameID)+"/chat", form)
}

func (c *Client) post(ctx context.Context, op, path string, form *fasthttp.Args) error {
	if c.dryRun {
		fields := []zap.Field{zap.String("op", op), zap.String("path", path)}
		if form != nil {
			fields = append(fields, zap.ByteString("form", form.QueryString()))
		}
		c.logger.Info("action_dryrun", fields...)
		return nil
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	c.authorize(req)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(form.QueryString())
	}

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return &StatusError{Op: op, Status: status, Body: truncate(string(resp.Body()), 512)}
	}
	c.logger.Debug("action_ok", zap.String("op", op), zap.String("path", path))
	return nil
}

func (c *Client) authorize(req *fasthttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package bot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/park285/Cheese-Lichess-bridge/internal/chess"
	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"github.com/park285/Cheese-Lichess-bridge/internal/registry"
)

type fakeStream struct {
	lines chan []byte
	once  sync.Once
}

// newFakeStream yields lines and then reports the feed as closed.
func newFakeStream(lines ...string) *fakeStream {
	s := &fakeStream{lines: make(chan []byte, len(lines)+1)}
	for _, l := range lines {
		s.lines <- []byte(l)
	}
	close(s.lines)
	return s
}

func (s *fakeStream) Next() ([]byte, error) {
	l, ok := <-s.lines
	if !ok {
		return nil, lichess.ErrFeedClosed
	}
	return l, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeFeeds struct {
	mu     sync.Mutex
	events lichess.Stream
	games  map[string]lichess.Stream
}

func (f *fakeFeeds) OpenEvents(context.Context) (lichess.Stream, error) {
	if f.events == nil {
		return nil, fmt.Errorf("no lobby feed")
	}
	return f.events, nil
}

func (f *fakeFeeds) OpenGame(_ context.Context, id string) (lichess.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.games[id]
	if !ok {
		return newFakeStream(), nil
	}
	return s, nil
}

type fakeActions struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *fakeActions) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	return a.err
}

func (a *fakeActions) Accept(_ context.Context, id string) error  { return a.record("accept " + id) }
func (a *fakeActions) Decline(_ context.Context, id string) error { return a.record("decline " + id) }
func (a *fakeActions) Abort(_ context.Context, id string) error   { return a.record("abort " + id) }
func (a *fakeActions) Move(_ context.Context, id, mv string) error {
	return a.record("move " + id + " " + mv)
}
func (a *fakeActions) Chat(_ context.Context, id, room, text string) error {
	return a.record("chat " + id + " " + room + " " + text)
}

func (a *fakeActions) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// fakeEngine answers each "go" with the next scripted reply.
type fakeEngine struct {
	mu      sync.Mutex
	sent    []string
	replies [][]string
	out     chan string
	options map[string]any
}

func newFakeEngine(replies ...[]string) *fakeEngine {
	return &fakeEngine{replies: replies, out: make(chan string, 64)}
}

func (e *fakeEngine) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, line)
	if strings.HasPrefix(line, "go ") && len(e.replies) > 0 {
		for _, l := range e.replies[0] {
			e.out <- l
		}
		e.replies = e.replies[1:]
	}
	return nil
}

func (e *fakeEngine) NextOutput(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-e.out:
		if !ok {
			return "", io.EOF
		}
		return l, nil
	}
}

func (e *fakeEngine) Drain() int { return 0 }

func (e *fakeEngine) Handshake(context.Context) error { return e.Send("uci") }

func (e *fakeEngine) ApplyOptions(opts map[string]any) error {
	e.mu.Lock()
	e.options = opts
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []chess.GenerateRequest
	move string
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, req chess.GenerateRequest) (chess.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return chess.Result{}, g.err
	}
	return chess.Result{Move: g.move, Source: chess.SourceEngine}, nil
}

func (g *fakeGenerator) Requests() []chess.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]chess.GenerateRequest(nil), g.reqs...)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Command = config.Command{"/opt/engines/lc0", "--threads=2"}
	cfg.Account = "MyBot"
	cfg.Token = "tok"
	cfg.ChatDelaySecs = 3600
	return cfg
}

type harness struct {
	deps    Deps
	actions *fakeActions
	feeds   *fakeFeeds
	engine  *fakeEngine
	gen     *fakeGenerator
	reg     *registry.Memory
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		actions: &fakeActions{},
		feeds:   &fakeFeeds{games: map[string]lichess.Stream{}},
		engine:  newFakeEngine(),
		gen:     &fakeGenerator{move: "e2e4"},
		reg:     registry.NewMemory(),
	}
	h.deps = Deps{
		Actions:   h.actions,
		Feeds:     h.feeds,
		Configs:   config.NewStaticStore(cfg),
		Registry:  h.reg,
		Generator: h.gen,
		Engine:    h.engine,
	}
	return h
}

func gameFull(white, black, variant, fen, moves string) string {
	return fmt.Sprintf(`{"type":"gameFull","id":"g1","variant":{"key":%q},"initialFen":%q,`+
		`"white":{"name":%q},"black":{"name":%q},`+
		`"state":{"type":"gameState","moves":%q,"wtime":60000,"btime":60000,"winc":1000,"binc":1000,"status":"started"}}`,
		variant, fen, white, black, moves)
}

func gameState(moves, status string) string {
	return fmt.Sprintf(`{"type":"gameState","moves":%q,"wtime":59000,"btime":58000,"winc":1000,"binc":1000,"status":%q}`, moves, status)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/park285/Cheese-Lichess-bridge/internal/chess"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/uci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runGame(t *testing.T, h *harness, lines ...string) error {
	t.Helper()
	h.feeds.games["g1"] = newFakeStream(lines...)
	require.True(t, h.reg.TryAcquire(context.Background(), "g1"))
	r := newRunner(h.deps, "g1", "run-1", zap.NewNop())
	err := r.Run(context.Background())
	assert.False(t, h.reg.IsOccupied(context.Background()), "slot must be released on every exit")
	return err
}

func TestToMoveParity(t *testing.T) {
	assert.Equal(t, ColourWhite, ToMove(0))
	assert.Equal(t, ColourBlack, ToMove(1))
	assert.Equal(t, ColourWhite, ToMove(4))
	assert.Equal(t, ColourBlack, ToMove(5))
}

func TestRunnerActsOnlyOnOwnTurn(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h,
		gameFull("MyBot", "Opp", "standard", "startpos", "e2e4 e7e5 g1f3 b8c6"),
		gameState("e2e4 e7e5 g1f3 b8c6 f1b5", "started"),
	)
	require.NoError(t, err)

	reqs := h.gen.Requests()
	require.Len(t, reqs, 1, "even history is white's turn, odd history is ignored")
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3", "b8c6"}, reqs[0].Moves)
	assert.Equal(t, chess.StartPos, reqs[0].InitialFEN)
	assert.Equal(t, int64(60000), reqs[0].WTime)
	assert.Equal(t, []string{"move g1 e2e4"}, h.actions.Calls())
}

func TestRunnerEndToEndAsBlack(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)
	eng := newFakeEngine([]string{
		"info depth 10 score cp 20 pv e7e5",
		"info depth 11 score cp 25 lowerbound",
		"bestmove e7e5 ponder g1f3",
	})
	books := openingbook.NewStore(nil)
	books.Set(openingbook.New([]string{"d4 d5"}))
	h.deps.Engine = eng
	h.deps.Generator = chess.NewGenerator(eng, books, nil)

	err := runGame(t, h,
		gameFull("Opp", "mybot", "standard", "startpos", ""),
		gameState("e4", "started"),
		gameState("e4 e7e5", "started"),
		gameState("e4 e7e5 Nf3", "resign"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ucinewgame",
		"setoption name UCI_Chess960 value false",
		"position startpos moves e4",
		"go wtime 59000 btime 58000 winc 1000 binc 1000",
	}, eng.Sent())
	assert.Equal(t, []string{"move g1 e7e5"}, h.actions.Calls())
}

func TestRunnerNodeCountAndFEN(t *testing.T) {
	cfg := testConfig()
	cfg.NodeCount = 1
	h := newHarness(cfg)
	fen := "bqnbrkrn/pppppppp/8/8/8/8/PPPPPPPP/BQNBRKRN w KQkq - 0 1"

	require.NoError(t, runGame(t, h, gameFull("MyBot", "Opp", "chess960", fen, "")))

	assert.Contains(t, h.engine.Sent(), "setoption name UCI_Chess960 value true")
	reqs := h.gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, fen, reqs[0].InitialFEN)
	assert.Equal(t, 1, reqs[0].NodeCount)
}

func TestRunnerStateBeforeFullAborts(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h, gameState("", "started"), gameFull("MyBot", "Opp", "standard", "startpos", ""))
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, []string{"abort g1"}, h.actions.Calls())
	assert.Empty(t, h.gen.Requests())
}

func TestRunnerUnresolvedColourAborts(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h, gameFull("Alice", "Bob", "standard", "startpos", ""))
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, []string{"abort g1"}, h.actions.Calls())
}

func TestRunnerUndecodableLineAborts(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h, `{"type":`)
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, []string{"abort g1"}, h.actions.Calls())
}

func TestRunnerEngineViolationAborts(t *testing.T) {
	h := newHarness(testConfig())
	h.gen.err = fmt.Errorf("%w: engine output ended before bestmove", uci.ErrProtocolViolation)
	err := runGame(t, h, gameFull("MyBot", "Opp", "standard", "startpos", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, uci.ErrProtocolViolation))
	assert.Equal(t, []string{"abort g1"}, h.actions.Calls())
}

func TestRunnerMoveFailureIsNotFatal(t *testing.T) {
	h := newHarness(testConfig())
	h.actions.err = errors.New("400")
	err := runGame(t, h,
		gameFull("MyBot", "Opp", "standard", "startpos", ""),
		gameState("e2e4 e7e5", "started"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"move g1 e2e4", "move g1 e2e4"}, h.actions.Calls())
}

func TestRunnerTerminalStatusStopsProcessing(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h,
		gameFull("Opp", "MyBot", "standard", "startpos", "e2e4 e7e5"),
		gameState("e2e4 e7e5 g1f3", "mate"),
		gameState("e2e4 e7e5 g1f3", "started"),
	)
	require.NoError(t, err)
	assert.Empty(t, h.gen.Requests())
	assert.Empty(t, h.actions.Calls())
}

func TestRunnerIgnoresChatLines(t *testing.T) {
	h := newHarness(testConfig())
	err := runGame(t, h,
		gameFull("Opp", "MyBot", "standard", "startpos", ""),
		`{"type":"chatLine","room":"player","username":"Opp","text":"hi"}`,
	)
	require.NoError(t, err)
	assert.Empty(t, h.actions.Calls())
}

package openingbook

import (
	"fmt"
	"io"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

const (
	defaultPolyglotMaxPly    = 8
	defaultPolyglotMinWeight = 1
	defaultPolyglotMaxLines  = 20000
)

// PolyglotOptions bounds the expansion of a polyglot tree into lines.
type PolyglotOptions struct {
	MaxPly    int
	MinWeight uint16
	MaxLines  int
}

func (o PolyglotOptions) withDefaults() PolyglotOptions {
	if o.MaxPly <= 0 {
		o.MaxPly = defaultPolyglotMaxPly
	}
	if o.MinWeight == 0 {
		o.MinWeight = defaultPolyglotMinWeight
	}
	if o.MaxLines <= 0 {
		o.MaxLines = defaultPolyglotMaxLines
	}
	return o
}

// LinesFromPolyglot walks a polyglot book from the start position and emits
// every leaf path as a UCI line.
func LinesFromPolyglot(r io.Reader, opts PolyglotOptions) ([]string, error) {
	opts = opts.withDefaults()
	book, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book: %w", err)
	}

	hasher := chesslib.NewZobristHasher()
	uciNotation := chesslib.UCINotation{}
	var lines []string

	var walk func(game *chesslib.Game, path []string) error
	walk = func(game *chesslib.Game, path []string) error {
		if len(lines) >= opts.MaxLines {
			return nil
		}
		emit := func() {
			if len(path) > 0 {
				lines = append(lines, strings.Join(path, " "))
			}
		}
		if len(path) >= opts.MaxPly {
			emit()
			return nil
		}

		hashStr, err := hasher.HashPosition(game.FEN())
		if err != nil {
			return fmt.Errorf("compute polyglot hash: %w", err)
		}
		entries := book.FindMoves(chesslib.ZobristHashToUint64(hashStr))

		expanded := false
		for _, entry := range entries {
			if entry.Weight < opts.MinWeight {
				continue
			}
			moveStr := polyglotMoveUCI(game.Position(), chesslib.DecodeMove(entry.Move))

			child := game.Clone()
			if err := child.PushNotationMove(moveStr, uciNotation, nil); err != nil {
				continue
			}
			expanded = true
			next := append(append([]string(nil), path...), moveStr)
			if err := walk(child, next); err != nil {
				return err
			}
		}
		if !expanded {
			emit()
		}
		return nil
	}

	if err := walk(chesslib.NewGame(), nil); err != nil {
		return nil, err
	}
	return lines, nil
}

// polyglotMoveUCI renders a book move in UCI. Polyglot encodes castling as the
// king taking its own rook (e1h1), which only holds when a king stands on the
// origin square; a rook travelling e1-h1 keeps its squares.
func polyglotMoveUCI(pos *chesslib.Position, pm chesslib.PolyglotMove) string {
	from := chesslib.NewSquare(chesslib.File(pm.FromFile), chesslib.Rank(pm.FromRank))
	to := chesslib.NewSquare(chesslib.File(pm.ToFile), chesslib.Rank(pm.ToRank))
	if pm.CastlingMove && pos.Board().Piece(from).Type() == chesslib.King {
		switch pm.ToFile {
		case 7:
			to = chesslib.NewSquare(chesslib.FileG, chesslib.Rank(pm.ToRank))
		case 0:
			to = chesslib.NewSquare(chesslib.FileC, chesslib.Rank(pm.ToRank))
		}
	}
	uci := from.String() + to.String()
	if pm.Promotion > 0 && pm.Promotion <= 4 {
		uci += string(" nbrq"[pm.Promotion])
	}
	return uci
}

package uci

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrProtocolViolation marks engine output that does not follow the UCI grammar.
var ErrProtocolViolation = errors.New("uci protocol violation")

// Mate scores sit strictly outside any plausible centipawn range; nearer mates
// score further from zero.
const (
	MateScore = 1_000_000
	mateStep  = 1000
)

type EventKind int

const (
	EventOther EventKind = iota
	EventScoreCP
	EventScoreMate
	EventBestMove
)

func (k EventKind) String() string {
	switch k {
	case EventScoreCP:
		return "score_cp"
	case EventScoreMate:
		return "score_mate"
	case EventBestMove:
		return "bestmove"
	default:
		return "other"
	}
}

// OutputEvent is one classified line of engine output.
type OutputEvent struct {
	Kind   EventKind
	Score  int
	Mate   int
	Move   string
	Ponder string
}

// MateToScore converts a mate distance (positive: side to move mates) into a score.
func MateToScore(distance int) int {
	if distance > 0 {
		return MateScore - distance*mateStep
	}
	return -MateScore - distance*mateStep
}

// ParseOutput classifies a single output line.
func ParseOutput(line string) (OutputEvent, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return OutputEvent{Kind: EventOther}, nil
	}

	if parts[0] == "bestmove" {
		if len(parts) < 2 {
			return OutputEvent{}, fmt.Errorf("%w: bestmove without move: %q", ErrProtocolViolation, line)
		}
		ev := OutputEvent{Kind: EventBestMove, Move: parts[1]}
		if len(parts) >= 4 && parts[2] == "ponder" {
			ev.Ponder = parts[3]
		}
		return ev, nil
	}

	for i := 0; i < len(parts); i++ {
		// everything after "string" is free text
		if parts[i] == "string" {
			break
		}
		if parts[i] != "score" {
			continue
		}
		if i+2 >= len(parts) {
			return OutputEvent{}, fmt.Errorf("%w: truncated score: %q", ErrProtocolViolation, line)
		}
		kind, val := parts[i+1], parts[i+2]
		switch kind {
		case "cp":
			if hasBound(parts[i+3:]) {
				return OutputEvent{Kind: EventOther}, nil
			}
			v, err := strconv.Atoi(val)
			if err != nil {
				return OutputEvent{}, fmt.Errorf("%w: bad cp value %q", ErrProtocolViolation, val)
			}
			return OutputEvent{Kind: EventScoreCP, Score: v}, nil
		case "mate":
			v, err := strconv.Atoi(val)
			if err != nil {
				return OutputEvent{}, fmt.Errorf("%w: bad mate value %q", ErrProtocolViolation, val)
			}
			return OutputEvent{Kind: EventScoreMate, Mate: v, Score: MateToScore(v)}, nil
		default:
			return OutputEvent{}, fmt.Errorf("%w: unknown score kind %q", ErrProtocolViolation, kind)
		}
	}
	return OutputEvent{Kind: EventOther}, nil
}

func hasBound(rest []string) bool {
	for _, tok := range rest {
		if tok == "lowerbound" || tok == "upperbound" {
			return true
		}
	}
	return false
}

// NormalizeCommand trims the line and lowercases boolean setoption values,
// since configuration may carry capitalised booleans.
func NormalizeCommand(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "setoption") {
		return line
	}
	switch {
	case strings.HasSuffix(line, " value True"):
		return strings.TrimSuffix(line, "True") + "true"
	case strings.HasSuffix(line, " value False"):
		return strings.TrimSuffix(line, "False") + "false"
	}
	return line
}

// FormatOptionValue renders a configuration value for setoption.
func FormatOptionValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatOptionValue(float64(x))
	default:
		return fmt.Sprint(x)
	}
}

// PositionCommand builds "position startpos|fen <fen> moves <tokens>".
func PositionCommand(initialFEN string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(initialFEN) == "" || initialFEN == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(initialFEN)
	}
	sb.WriteString(" moves")
	if len(moves) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// GoCommand builds a node-limited search when nodes > 0, otherwise a clock search.
func GoCommand(nodes int, wtime, btime, winc, binc int64) string {
	if nodes > 0 {
		return "go nodes " + strconv.Itoa(nodes)
	}
	return fmt.Sprintf("go wtime %d btime %d winc %d binc %d", wtime, btime, winc, binc)
}

package openingbook

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

const (
	NotationRaw = "raw"
	NotationSAN = "san"
)

// LoadOptions selects how a book file is read.
type LoadOptions struct {
	// Notation "san" rewrites each line into UCI tokens.
	Notation string
	// Polyglot expansion limits, used for .bin files.
	Polyglot PolyglotOptions
}

// Load reads a book file. ".json" files hold an array of strings, ".bin" files
// are polyglot books expanded into lines, anything else is one line per row
// (blank rows and rows starting with '#' are skipped).
func Load(path string, opts LoadOptions) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't load %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.NewDecoder(f).Decode(&lines); err != nil {
			return nil, fmt.Errorf("%s seems to be illegal JSON: %w", path, err)
		}
	case ".bin":
		lines, err = LinesFromPolyglot(f, opts.Polyglot)
		if err != nil {
			return nil, err
		}
		return New(lines), nil
	default:
		lines, err = readTextLines(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if opts.Notation == NotationSAN {
		lines, err = convertSANLines(lines)
		if err != nil {
			return nil, err
		}
	}
	return New(lines), nil
}

func readTextLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

var errNoUCIMoves = errors.New("no decodable moves")

// SANToUCI replays a SAN line from the start position and returns the same
// line in UCI notation. It stops at the first token that does not decode.
func SANToUCI(line string) (string, error) {
	game := chesslib.NewGame()
	san := chesslib.AlgebraicNotation{}
	uci := chesslib.UCINotation{}

	var out []string
	for _, tok := range strings.Fields(line) {
		pos := game.Position()
		mv, err := san.Decode(pos, tok)
		if err != nil {
			break
		}
		out = append(out, uci.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			break
		}
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: %q", errNoUCIMoves, line)
	}
	return strings.Join(out, " "), nil
}

func convertSANLines(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	var firstErr error
	for _, l := range lines {
		converted, err := SANToUCI(l)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, converted)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, fmt.Errorf("convert san book: %w", firstErr)
	}
	return out, nil
}

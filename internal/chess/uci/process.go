package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	outputBufferLines       = 4096
	maxLineBytes            = 1 << 20
)

// Process owns an engine subprocess. Output lines from stdout are queued for a
// single consumer; stderr is logged and never interpreted.
//
// Only one caller may drive a search at a time. Send is safe for concurrent use
// but interleaved searches would corrupt the output stream.
type Process struct {
	tag    string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output chan string
	done   chan struct{}
	logger *zap.Logger

	mu        sync.Mutex
	readers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Start spawns command and its two reader goroutines.
func Start(ctx context.Context, command []string, tag string, logger *zap.Logger) (*Process, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("engine command required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &Process{
		tag:    tag,
		cmd:    cmd,
		stdin:  stdin,
		output: make(chan string, outputBufferLines),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("engine", tag)),
	}
	p.readers.Add(2)
	go p.watchStdout(stdout)
	go p.watchStderr(stderr)
	p.logger.Info("engine_started", zap.Strings("command", command), zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

func (p *Process) Tag() string { return p.tag }

// Send writes line plus a newline to the engine.
func (p *Process) Send(line string) error {
	line = NormalizeCommand(line)

	p.mu.Lock()
	_, err := io.WriteString(p.stdin, line+"\n")
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("send %q: %w", line, err)
	}

	if strings.HasPrefix(line, "position") || strings.HasPrefix(line, "go") {
		p.logger.Debug("engine_send", zap.String("line", line))
	} else {
		p.logger.Info("engine_send", zap.String("line", line))
	}
	return nil
}

// NextOutput blocks until a line is available. It returns io.EOF once stdout is
// exhausted, or ctx.Err() if ctx ends first.
func (p *Process) NextOutput(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.output:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Drain discards lines already queued and reports how many were dropped.
func (p *Process) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-p.output:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Handshake sends "uci" and waits for "uciok".
func (p *Process) Handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, defaultHandshakeTimeout)
	defer cancel()

	if err := p.Send("uci"); err != nil {
		return err
	}
	for {
		line, err := p.NextOutput(hctx)
		if err != nil {
			return fmt.Errorf("wait uciok: %w", err)
		}
		if line == "uciok" {
			return nil
		}
	}
}

// SetOption sends one setoption command.
func (p *Process) SetOption(name string, value any) error {
	return p.Send(fmt.Sprintf("setoption name %s value %s", name, FormatOptionValue(value)))
}

// ApplyOptions sends every option in name order.
func (p *Process) ApplyOptions(options map[string]any) error {
	names := make([]string, 0, len(options))
	for k := range options {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := p.SetOption(name, options[name]); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

// Close stops the engine and waits for the readers to finish.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		_ = p.stdin.Close()
		p.mu.Unlock()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		p.readers.Wait()
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
		p.logger.Info("engine_stopped")
	})
	return p.closeErr
}

func (p *Process) watchStdout(r io.Reader) {
	defer p.readers.Done()
	defer close(p.output)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case p.output <- line:
		case <-p.done:
			return
		}
		if strings.HasPrefix(line, "info") || strings.HasPrefix(line, "bestmove") {
			p.logger.Debug("engine_recv", zap.String("line", line))
		} else {
			p.logger.Info("engine_recv", zap.String("line", line))
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("engine_stdout_error", zap.Error(err))
	}
}

func (p *Process) watchStderr(r io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.logger.Warn("engine_stderr", zap.String("line", line))
		}
	}
}

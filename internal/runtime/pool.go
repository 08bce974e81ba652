package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// poolIdleTimeout is how long a pooled process may sit without a turn
// before it's evicted, grounded on the long-lived-session idle eviction
// described in §4.2.
const poolIdleTimeout = 10 * time.Minute

// poolTurnTimeout bounds how long SendTurn waits for a turn-terminator
// event before declaring the process hung and evicting it.
const poolTurnTimeout = 5 * time.Minute

// Pool maintains one live subprocess per session key for strategies whose
// MultiTurnMode is process-pool. Grounded on the long-lived-session cache
// pattern used throughout the example corpus for TTL-bounded resource
// pools, backed here by github.com/hashicorp/golang-lru/v2 for bounded
// capacity with LRU eviction.
type Pool struct {
	mu       sync.Mutex
	strategy Strategy
	tracker  *Tracker
	cache    *lru.Cache[string, *pooledProcess]
}

// NewPool creates a process pool for strategy, holding up to capacity
// concurrent live sessions; the least-recently-used session is evicted
// (and its subprocess killed) once capacity is exceeded.
func NewPool(strategy Strategy, tracker *Tracker, capacity int) (*Pool, error) {
	p := &Pool{strategy: strategy, tracker: tracker}
	cache, err := lru.NewWithEvict(capacity, func(key string, proc *pooledProcess) {
		proc.kill()
	})
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

type pooledProcess struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     chan []byte
	mu        sync.Mutex
	lastUsed  time.Time
	idleTimer *time.Timer
}

func (p *pooledProcess) kill() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// SendTurn writes a framed user turn to the pooled session's stdin
// (spawning a fresh process on first use for sessionKey) and streams
// events until a text_final/done terminator. On hang, idle-timeout, or a
// "long-running:*" classified error, the process is evicted and the
// caller should transparently fall back to a one-shot Invoke (§4.2).
func (p *Pool) SendTurn(ctx context.Context, sessionKey string, opts InvokeOptions, cfg InvokeConfig) <-chan Event {
	out := make(chan Event, 64)

	p.mu.Lock()
	proc, ok := p.cache.Get(sessionKey)
	if !ok {
		var err error
		proc, err = p.spawn(ctx, opts)
		if err != nil {
			p.mu.Unlock()
			out <- errorEvent(ErrorSpawn, p.strategy.HandleSpawnError(err))
			out <- doneEvent()
			close(out)
			return out
		}
		p.cache.Add(sessionKey, proc)
	}
	p.mu.Unlock()

	go func() {
		defer close(out)

		turn, _ := json.Marshal(map[string]any{
			"type":    "user",
			"message": map[string]any{"role": "user", "content": opts.Prompt},
		})
		proc.mu.Lock()
		writeErr := writeRawLine(proc, turn)
		proc.mu.Unlock()
		if writeErr != nil {
			p.evict(sessionKey)
			out <- errorEvent(ErrorExit, fmt.Sprintf("long-running:%s: write failed", p.strategy.ID()))
			out <- doneEvent()
			return
		}

		deadline := time.NewTimer(poolTurnTimeout)
		defer deadline.Stop()

		for {
			select {
			case line, ok := <-proc.lines:
				if !ok {
					p.evict(sessionKey)
					out <- doneEvent()
					return
				}
				parsed, ok := p.strategy.ParseLine(ctx, line)
				if !ok {
					continue
				}
				if parsed.Text != "" {
					out <- textDelta(parsed.Text)
				}
				if parsed.ResultText != "" {
					out <- textFinal(parsed.ResultText)
					out <- doneEvent()
					proc.lastUsed = time.Now()
					return
				}
				if parsed.ToolStart {
					out <- toolStartEvent(parsed.ToolName, parsed.ToolInput)
				}
				if parsed.ToolEnd {
					out <- toolEndEvent(parsed.ToolName, parsed.ToolOK)
				}
			case <-deadline.C:
				p.evict(sessionKey)
				out <- errorEvent(ErrorLongRunning, fmt.Sprintf("long-running:%s: turn timed out", p.strategy.ID()))
				out <- doneEvent()
				return
			case <-ctx.Done():
				p.evict(sessionKey)
				out <- errorEvent(ErrorAborted, "aborted")
				out <- doneEvent()
				return
			}
		}
	}()

	return out
}

func writeRawLine(proc *pooledProcess, line []byte) error {
	line = append(append([]byte(nil), line...), '\n')
	_, err := proc.stdin.Write(line)
	return err
}

func (p *Pool) spawn(ctx context.Context, opts InvokeOptions) (*pooledProcess, error) {
	args := p.strategy.BuildArgs(ctx, opts)
	cmd := exec.Command(p.strategy.DefaultBinary(), args...)
	cmd.Dir = opts.WorkspaceDir
	cmd.Env = append(os.Environ(), "NO_COLOR=1", "FORCE_COLOR=0", "TERM=dumb")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if p.tracker != nil {
		p.tracker.add(cmd.Process)
	}

	proc := &pooledProcess{cmd: cmd, stdin: stdin, lines: make(chan []byte, 64), lastUsed: time.Now()}

	go func() {
		defer close(proc.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			if len(line) == 0 {
				continue
			}
			proc.lines <- line
		}
	}()

	proc.idleTimer = time.AfterFunc(poolIdleTimeout, func() {
		proc.kill()
	})

	return proc, nil
}

func (p *Pool) evict(sessionKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(sessionKey)
}

// KillAll terminates every pooled subprocess, used for host shutdown.
func (p *Pool) KillAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range p.cache.Keys() {
		if proc, ok := p.cache.Peek(key); ok {
			proc.kill()
		}
	}
	p.cache.Purge()
}

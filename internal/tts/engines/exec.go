package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoOutput is returned when a program exits cleanly without audio.
var ErrNoOutput = errors.New("program produced no output")

// killGrace is how long an interrupted program gets before it is killed.
const killGrace = 100 * time.Millisecond

// run executes binary with stdin preset and returns its stdout. It gives the
// program an interrupt before killing it when ctx ends, and caps the output
// at maxOutput bytes.
func run(ctx context.Context, timeout time.Duration, binary string, args []string, stdin io.Reader, maxOutput int) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// not CommandContext: the process gets an interrupt before the kill
	cmd := exec.Command(binary, args...)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.Stdin = stdin
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", binary, err, lastLine(stderr.String()))
		}
	case <-ctx.Done():
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
			<-done
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", binary, timeout, ctx.Err())
		}
		return nil, ctx.Err()
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s: %w, stderr: %s", binary, ErrNoOutput, lastLine(stderr.String()))
	}
	if maxOutput > 0 && stdout.Len() > maxOutput {
		return nil, fmt.Errorf("%s output too large: %d bytes (max %d)", binary, stdout.Len(), maxOutput)
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Available reports whether binary can be found on PATH.
func Available(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", binary, err)
	}
	return nil
}

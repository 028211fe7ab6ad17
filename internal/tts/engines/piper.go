package engines

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxTextSize is the longest text handed to piper in one run.
	MaxTextSize = 5000

	maxPiperOutput = 10 * 1024 * 1024
)

// PiperConfig configures the piper runner.
type PiperConfig struct {
	Binary  string        // defaults to "piper"
	Timeout time.Duration // per utterance, defaults to 10s
}

// PiperRequest is one synthesis run.
type PiperRequest struct {
	Text   string
	Model  string // path to the .onnx voice
	Config string // path to the .onnx.json sidecar, optional
	Rate   float64
}

// PiperEngine synthesizes speech by running one piper process per request.
// Output is raw 16-bit mono PCM at the voice's native sample rate.
type PiperEngine struct {
	binary  string
	timeout time.Duration
}

// NewPiperEngine creates a piper runner.
func NewPiperEngine(cfg PiperConfig) *PiperEngine {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PiperEngine{binary: cfg.Binary, timeout: cfg.Timeout}
}

// Binary returns the program the engine runs.
func (e *PiperEngine) Binary() string {
	return e.binary
}

// Synthesize runs piper with the text preset on stdin; writing to stdin
// after start races piper's read.
func (e *PiperEngine) Synthesize(ctx context.Context, req PiperRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	if len(req.Text) > MaxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(req.Text), MaxTextSize)
	}
	if req.Model == "" {
		return nil, errors.New("model path is required")
	}
	return run(ctx, e.timeout, e.binary, piperArgs(req), strings.NewReader(req.Text), maxPiperOutput)
}

func piperArgs(req PiperRequest) []string {
	rate := req.Rate
	if rate <= 0 {
		rate = 1
	}
	args := []string{"--model", req.Model}
	if req.Config != "" {
		args = append(args, "--config", req.Config)
	}
	// length scale is the inverse of speed: 0.5 is twice as fast
	return append(args, "--output-raw", "--length-scale", fmt.Sprintf("%.2f", 1/rate))
}

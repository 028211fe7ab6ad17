package engines

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

const maxPCMOutput = 20 * 1024 * 1024

// TranscoderConfig configures the ffmpeg runner.
type TranscoderConfig struct {
	Binary     string        // defaults to "ffmpeg"
	SampleRate int           // output rate, defaults to 44100
	Timeout    time.Duration // defaults to 15s
	TempDir    string        // for MP3 input files, defaults to os.TempDir()
}

// Transcoder turns synthesized audio into PCM the player accepts: 16-bit
// little-endian mono at one fixed rate.
type Transcoder struct {
	binary     string
	sampleRate int
	timeout    time.Duration
	tempDir    string
}

// NewTranscoder creates an ffmpeg runner.
func NewTranscoder(cfg TranscoderConfig) *Transcoder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Transcoder{
		binary:     cfg.Binary,
		sampleRate: cfg.SampleRate,
		timeout:    cfg.Timeout,
		tempDir:    cfg.TempDir,
	}
}

// SampleRate returns the output rate.
func (t *Transcoder) SampleRate() int {
	return t.sampleRate
}

// DecodeMP3 decodes mp3 to PCM, changing its tempo when tempo is not 1.
func (t *Transcoder) DecodeMP3(ctx context.Context, mp3 []byte, tempo float64) ([]byte, error) {
	// ffmpeg needs a seekable input to detect MP3 reliably
	f, err := os.CreateTemp(t.tempDir, "verse-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp MP3 file: %w", err)
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(mp3); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write MP3 data: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write MP3 data: %w", err)
	}

	return run(ctx, t.timeout, t.binary, t.decodeArgs(f.Name(), tempo), nil, maxPCMOutput)
}

func (t *Transcoder) decodeArgs(input string, tempo float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input}
	args = append(args, t.outputArgs()...)
	if tempo > 0 && tempo != 1 {
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", clampTempo(tempo)))
	}
	return append(args, "-")
}

// Resample converts mono PCM at fromRate to the output rate.
func (t *Transcoder) Resample(ctx context.Context, pcm []byte, fromRate int) ([]byte, error) {
	if fromRate == t.sampleRate {
		return pcm, nil
	}
	return run(ctx, t.timeout, t.binary, t.resampleArgs(fromRate), bytes.NewReader(pcm), maxPCMOutput)
}

func (t *Transcoder) resampleArgs(fromRate int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", strconv.Itoa(fromRate), "-ac", "1", "-i", "pipe:0",
	}
	args = append(args, t.outputArgs()...)
	return append(args, "-")
}

func (t *Transcoder) outputArgs() []string {
	return []string{"-f", "s16le", "-ar", strconv.Itoa(t.sampleRate), "-ac", "1"}
}

// atempo accepts 0.5 to 2.0 in a single filter stage.
func clampTempo(tempo float64) float64 {
	return min(max(tempo, 0.5), 2.0)
}

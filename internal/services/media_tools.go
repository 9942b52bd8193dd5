package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edulight/edulight-backend/internal/logger"
)

// MediaToolsService wraps the system binaries the transcription path needs.
//
// REQUIRED BINARIES in the server runtime:
// - ffmpeg for video/audio -> mono 16kHz WAV
//
// Synchronous and deterministic; callers run it from the publish pipeline,
// never from request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error

	// DecodeToWAV converts any ffmpeg-readable media file to mono PCM WAV at
	// the given sample rate, the input format speech models expect.
	DecodeToWAV(ctx context.Context, inputPath string, outPath string, opts AudioDecodeOptions) (string, error)

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
}

type AudioDecodeOptions struct {
	SampleRateHz int // 0 means 16000
	Channels     int // 0 means 1
}

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath string
	workRoot   string

	defaultTimeout time.Duration
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	return &mediaToolsService{
		log:            log.With("service", "MediaToolsService"),
		ffmpegPath:     "ffmpeg",
		workRoot:       "/tmp/edulight-media",
		defaultTimeout: 15 * time.Minute,
	}
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	ctx = defaultCtx(ctx)
	_, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", m.ffmpegPath, err)
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *mediaToolsService) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(m.workRoot, base+suffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (m *mediaToolsService) DecodeToWAV(ctx context.Context, inputPath string, outPath string, opts AudioDecodeOptions) (string, error) {
	ctx = defaultCtx(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return "", err
	}
	if inputPath == "" {
		return "", fmt.Errorf("inputPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg -i in.mp4 -vn -ac 1 -ar 16000 -f wav out.wav
	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(ch),
		"-ar", strconv.Itoa(sr),
		"-f", "wav",
		outPath,
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg decode failed: %w; out=%s", err, string(out))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

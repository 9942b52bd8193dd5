package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/utils"
)

// TranscriptionEngine turns a mono 16kHz WAV file into plain text.
// Implementations are expensive to construct (model weights load on first
// use), so they are obtained through the TranscriberRegistry.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// TranscriberSpec identifies one loaded engine. Engines differ by model
// size and execution target, and each combination is loaded at most once
// per process.
type TranscriberSpec struct {
	Model       string // "base", "small", "medium", ...
	Device      string // "cpu", "cuda"
	ComputeType string // "int8", "float16"
}

// TranscriberRegistry lazily constructs and caches engines per spec.
type TranscriberRegistry interface {
	Get(ctx context.Context, spec TranscriberSpec) (TranscriptionEngine, error)
}

// EngineFactory builds an engine for a spec. Swappable in tests.
type EngineFactory func(log *logger.Logger, spec TranscriberSpec) (TranscriptionEngine, error)

// engineEntry holds one spec's engine plus a done channel closed once the
// build finishes, so late callers wait instead of loading the weights again.
type engineEntry struct {
	done chan struct{}
	eng  TranscriptionEngine
	err  error
}

type transcriberRegistry struct {
	log     *logger.Logger
	factory EngineFactory

	mu      sync.Mutex
	engines map[TranscriberSpec]*engineEntry
}

func NewTranscriberRegistry(log *logger.Logger, factory EngineFactory) TranscriberRegistry {
	if factory == nil {
		factory = NewWhisperCppEngine
	}
	return &transcriberRegistry{
		log:     log.With("service", "TranscriberRegistry"),
		factory: factory,
		engines: make(map[TranscriberSpec]*engineEntry),
	}
}

func (r *transcriberRegistry) Get(ctx context.Context, spec TranscriberSpec) (TranscriptionEngine, error) {
	if spec.Model == "" {
		spec.Model = "base"
	}
	if spec.Device == "" {
		spec.Device = "cpu"
	}
	if spec.ComputeType == "" {
		spec.ComputeType = "int8"
	}

	r.mu.Lock()
	entry, ok := r.engines[spec]
	if ok {
		r.mu.Unlock()
		// Either already loaded or another caller is loading this spec.
		// Wait for it; weight loading can take minutes, so honor the ctx.
		select {
		case <-entry.done:
			return entry.eng, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// First caller for this spec builds; the entry is published before
	// unlocking so concurrent callers wait on it instead of building too.
	// Other specs are not blocked: the factory runs outside the map lock.
	entry = &engineEntry{done: make(chan struct{})}
	r.engines[spec] = entry
	r.mu.Unlock()

	start := time.Now()
	entry.eng, entry.err = r.factory(r.log, spec)
	if entry.err != nil {
		// Failed builds are not cached: drop the entry so the next
		// request retries once the operator fixes the model path.
		r.mu.Lock()
		delete(r.engines, spec)
		r.mu.Unlock()
		close(entry.done)
		return nil, entry.err
	}
	close(entry.done)

	r.log.Info("Transcription engine loaded",
		"model", spec.Model,
		"device", spec.Device,
		"compute_type", spec.ComputeType,
		"took", time.Since(start).String(),
	)
	return entry.eng, nil
}

// whisperCppEngine shells out to the whisper.cpp CLI. The binary and model
// directory come from the environment; the model file is resolved once at
// construction so a misconfigured path fails fast.
type whisperCppEngine struct {
	log       *logger.Logger
	binPath   string
	modelPath string
	language  string
	threads   int
	timeout   time.Duration
}

func NewWhisperCppEngine(log *logger.Logger, spec TranscriberSpec) (TranscriptionEngine, error) {
	elog := log.With("service", "WhisperCppEngine")

	binPath := utils.GetEnv("WHISPER_BIN", "whisper-cli", elog)
	modelDir := utils.GetEnv("WHISPER_MODEL_DIR", "/opt/whisper/models", elog)
	language := utils.GetEnv("WHISPER_LANGUAGE", "auto", elog)
	threads := utils.GetEnvAsInt("WHISPER_THREADS", 4, elog)
	timeoutMin := utils.GetEnvAsInt("WHISPER_TIMEOUT_MINUTES", 60, elog)

	if _, err := exec.LookPath(binPath); err != nil {
		return nil, fmt.Errorf("whisper binary %q not found in PATH: %w", binPath, err)
	}

	modelFile := fmt.Sprintf("ggml-%s.bin", spec.Model)
	if spec.ComputeType == "int8" {
		// Prefer a quantized model when one is present.
		quantized := filepath.Join(modelDir, fmt.Sprintf("ggml-%s-q8_0.bin", spec.Model))
		if _, err := os.Stat(quantized); err == nil {
			modelFile = filepath.Base(quantized)
		}
	}
	modelPath := filepath.Join(modelDir, modelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model %q not found: %w", modelPath, err)
	}

	return &whisperCppEngine{
		log:       elog,
		binPath:   binPath,
		modelPath: modelPath,
		language:  language,
		threads:   threads,
		timeout:   time.Duration(timeoutMin) * time.Minute,
	}, nil
}

func (e *whisperCppEngine) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if wavPath == "" {
		return "", fmt.Errorf("wavPath required")
	}

	ctx, cancel := context.WithTimeout(defaultCtx(ctx), e.timeout)
	defer cancel()

	args := []string{
		"-m", e.modelPath,
		"-f", wavPath,
		"-l", e.language,
		"-t", fmt.Sprintf("%d", e.threads),
		"--no-timestamps",
	}

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("whisper failed: %w; stderr=%s", err, string(ee.Stderr))
		}
		return "", fmt.Errorf("whisper failed: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

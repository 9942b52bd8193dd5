package services

import (
	"context"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/utils"
)

// EmbeddingService converts extracted text into one fixed-length vector.
// A nil vector with a nil error means the text could not be vectorized;
// the material stays searchable by nothing, which is non-fatal.
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type embeddingService struct {
	log    *logger.Logger
	client GigaChatClient

	chunkSize int
	overlap   int
}

func NewEmbeddingService(log *logger.Logger, client GigaChatClient) EmbeddingService {
	slog := log.With("service", "EmbeddingService")
	return &embeddingService{
		log:       slog,
		client:    client,
		chunkSize: utils.GetEnvAsInt("EMBEDDING_CHUNK_SIZE", 2000, slog),
		overlap:   utils.GetEnvAsInt("EMBEDDING_CHUNK_OVERLAP", 200, slog),
	}
}

// SplitTextIntoChunks splits text into overlapping windows of at most
// chunkSize characters. When a sentence or paragraph boundary falls in the
// back half of a window, the window is cut there instead of mid-sentence.
// Consecutive windows overlap so no boundary is invisible to every window.
func SplitTextIntoChunks(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{text}
	}

	separators := []string{". ", "! ", "? ", "\n\n", "\n"}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])

		if end < len(runes) {
			for _, sep := range separators {
				lastSep := strings.LastIndex(chunk, sep)
				if lastSep > len(chunk)/2 {
					chunk = chunk[:lastSep+len(sep)]
					end = start + len([]rune(chunk))
					break
				}
			}
		}

		chunks = append(chunks, strings.TrimSpace(chunk))

		if end >= len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

func (s *embeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if len([]rune(text)) <= s.chunkSize {
		vec, err := s.client.Embed(ctx, text)
		if err != nil {
			s.log.Warn("Embedding failed", "error", err.Error())
			return nil, nil
		}
		return vec, nil
	}

	chunks := SplitTextIntoChunks(text, s.chunkSize, s.overlap)
	s.log.Info("Text split for embedding", "chunks", len(chunks))

	// Collect per-chunk vectors; the client's shared semaphore bounds the
	// aggregate outbound rate, so each chunk can have its own goroutine.
	vectors := make([][]float32, len(chunks))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := s.client.Embed(gctx, chunk)
			if err != nil {
				s.log.Warn("Chunk embedding failed", "chunk", i+1, "of", len(chunks), "error", err.Error())
				return nil
			}
			mu.Lock()
			vectors[i] = vec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil
	}

	var succeeded [][]float32
	for _, v := range vectors {
		if v != nil {
			succeeded = append(succeeded, v)
		}
	}
	if len(succeeded) == 0 {
		s.log.Error("No chunk produced an embedding")
		return nil, nil
	}
	if len(succeeded) == 1 {
		return succeeded[0], nil
	}

	sum := make([]float32, len(succeeded[0]))
	for _, vec := range succeeded {
		for i := range sum {
			if i < len(vec) {
				sum[i] += vec[i]
			}
		}
	}
	return l2Normalize(sum), nil
}

func l2Normalize(vec []float32) []float32 {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

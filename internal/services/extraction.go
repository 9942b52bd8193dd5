package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
	"github.com/edulight/edulight-backend/internal/utils"
)

// ExtractionResult is what one material yields. HasContent=false with a nil
// error means the material type carries no extractable text (images, archives);
// that is a terminal outcome, not a failure.
type ExtractionResult struct {
	Text       string
	HasContent bool
}

// ExtractionService turns one raw lecture material into plain text,
// dispatching on the declared material type.
type ExtractionService interface {
	Extract(ctx context.Context, material *types.Material) (ExtractionResult, error)
}

// MaterialStore resolves a material's file reference to bytes on disk.
// The production store keeps files under an uploads root; tests swap in a
// fixture directory.
type MaterialStore interface {
	ResolvePath(material *types.Material) (string, error)
	ReadBytes(material *types.Material) ([]byte, error)
}

type fsMaterialStore struct {
	root string
}

func NewFSMaterialStore(log *logger.Logger) MaterialStore {
	root := utils.GetEnv("MATERIAL_UPLOAD_ROOT", "uploads", log.With("service", "MaterialStore"))
	return &fsMaterialStore{root: root}
}

func (s *fsMaterialStore) ResolvePath(material *types.Material) (string, error) {
	p := material.FilePath
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: material file %s: %v", apperr.ErrNotFound, material.FileName, err)
	}
	return p, nil
}

func (s *fsMaterialStore) ReadBytes(material *types.Material) ([]byte, error) {
	p, err := s.ResolvePath(material)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

type extractionService struct {
	log         *logger.Logger
	store       MaterialStore
	media       MediaToolsService
	transcriber TranscriberRegistry

	whisperModel   string
	whisperDevice  string
	whisperCompute string
}

func NewExtractionService(log *logger.Logger, store MaterialStore, media MediaToolsService, transcriber TranscriberRegistry) ExtractionService {
	slog := log.With("service", "ExtractionService")
	return &extractionService{
		log:            slog,
		store:          store,
		media:          media,
		transcriber:    transcriber,
		whisperModel:   utils.GetEnv("WHISPER_MODEL", "base", slog),
		whisperDevice:  utils.GetEnv("WHISPER_DEVICE", "cpu", slog),
		whisperCompute: utils.GetEnv("WHISPER_COMPUTE_TYPE", "int8", slog),
	}
}

func (s *extractionService) Extract(ctx context.Context, material *types.Material) (ExtractionResult, error) {
	switch material.FileType {
	case types.MaterialTypeVideo, types.MaterialTypeAudio:
		return s.extractAV(ctx, material)
	case types.MaterialTypePDF, types.MaterialTypeDocument:
		return s.extractDocument(material)
	default:
		// Presentations and unrecognized uploads carry no text the
		// pipeline can use; they publish but stay unsearchable.
		s.log.Info("Material type has no extractable text",
			"material_id", material.ID.String(),
			"file_type", material.FileType,
		)
		return ExtractionResult{HasContent: false}, nil
	}
}

func (s *extractionService) extractAV(ctx context.Context, material *types.Material) (ExtractionResult, error) {
	inputPath, err := s.store.ResolvePath(material)
	if err != nil {
		return ExtractionResult{}, err
	}

	eng, err := s.transcriber.Get(ctx, TranscriberSpec{
		Model:       s.whisperModel,
		Device:      s.whisperDevice,
		ComputeType: s.whisperCompute,
	})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: transcription engine: %v", apperr.ErrConfiguration, err)
	}

	// A missing ffmpeg is an operator problem, not a broken upload.
	if err := s.media.AssertReady(ctx); err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: audio toolchain: %v", apperr.ErrConfiguration, err)
	}

	wavDir, err := os.MkdirTemp("", "edulight-transcribe-*")
	if err != nil {
		return ExtractionResult{}, err
	}
	defer os.RemoveAll(wavDir)

	wavPath := filepath.Join(wavDir, "audio.wav")
	if _, err := s.media.DecodeToWAV(ctx, inputPath, wavPath, AudioDecodeOptions{}); err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: decode %s: %v", apperr.ErrParse, material.FileName, err)
	}

	text, err := eng.Transcribe(ctx, wavPath)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: transcribe %s: %v", apperr.ErrExternal, material.FileName, err)
	}

	text = strings.TrimSpace(text)
	return ExtractionResult{Text: text, HasContent: text != ""}, nil
}

func (s *extractionService) extractDocument(material *types.Material) (ExtractionResult, error) {
	data, err := s.store.ReadBytes(material)
	if err != nil {
		return ExtractionResult{}, err
	}

	text, err := ExtractDocumentText(material.FileName, data)
	if err != nil {
		return ExtractionResult{}, err
	}

	text = strings.TrimSpace(text)
	return ExtractionResult{Text: text, HasContent: text != ""}, nil
}

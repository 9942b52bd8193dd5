package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
	"github.com/edulight/edulight-backend/internal/types"
	"github.com/edulight/edulight-backend/internal/utils"
)

// PublishOutcome is what the publish endpoint returns immediately; actual
// completion is observable only by polling lecture state.
type PublishOutcome struct {
	Accepted         bool `json:"accepted"`
	AlreadyPublished bool `json:"already_published"`
	InFlight         bool `json:"in_flight"`
}

// MaterialError pairs a failing material with its error, for the aggregated
// report surfaced through last_publish_error.
type MaterialError struct {
	FileName string
	Err      error
}

// PublishReport summarizes one publish cycle.
type PublishReport struct {
	Total     int
	Succeeded int
	Errors    []MaterialError
	Published bool
}

// PublicationService drives the lecture publish cycle: extraction plus
// embedding for every material on a bounded worker pool, then an atomic flip
// to published with optional shared-quiz creation, only when every material
// succeeded.
type PublicationService interface {
	// Publish validates and schedules a publish cycle, returning before the
	// work completes.
	Publish(ctx context.Context, lectureID uuid.UUID, ownerUserID uuid.UUID) (PublishOutcome, error)

	// ProcessLecture runs one full publish cycle synchronously. Publish
	// calls it on a background goroutine; tests call it directly.
	ProcessLecture(ctx context.Context, lectureID uuid.UUID, ownerUserID uuid.UUID) (*PublishReport, error)
}

type publicationService struct {
	log *logger.Logger
	db  *gorm.DB

	lectureRepo  repos.LectureRepo
	materialRepo repos.MaterialRepo
	pmRepo       repos.ProcessedMaterialRepo
	testRepo     repos.TestRepo
	questionRepo repos.QuestionRepo

	extractor  ExtractionService
	embedder   EmbeddingService
	questioner QuestionGenService
	lock       PublishLock

	workerCap int
}

func NewPublicationService(
	log *logger.Logger,
	db *gorm.DB,
	lectureRepo repos.LectureRepo,
	materialRepo repos.MaterialRepo,
	pmRepo repos.ProcessedMaterialRepo,
	testRepo repos.TestRepo,
	questionRepo repos.QuestionRepo,
	extractor ExtractionService,
	embedder EmbeddingService,
	questioner QuestionGenService,
	lock PublishLock,
) PublicationService {
	slog := log.With("service", "PublicationService")
	return &publicationService{
		log:          slog,
		db:           db,
		lectureRepo:  lectureRepo,
		materialRepo: materialRepo,
		pmRepo:       pmRepo,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		extractor:    extractor,
		embedder:     embedder,
		questioner:   questioner,
		lock:         lock,
		workerCap:    utils.GetEnvAsInt("PUBLISH_WORKER_CAP", 3, slog),
	}
}

func (s *publicationService) Publish(ctx context.Context, lectureID uuid.UUID, ownerUserID uuid.UUID) (PublishOutcome, error) {
	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return PublishOutcome{}, err
	}
	if lecture.Published {
		return PublishOutcome{AlreadyPublished: true}, nil
	}

	materials, err := s.materialRepo.GetByLectureID(ctx, nil, lectureID)
	if err != nil {
		return PublishOutcome{}, err
	}
	if len(materials) == 0 {
		return PublishOutcome{}, fmt.Errorf("%w: lecture has no materials", apperr.ErrValidation)
	}

	release, acquired, err := s.lock.TryAcquire(ctx, lectureID)
	if err != nil {
		return PublishOutcome{}, err
	}
	if !acquired {
		return PublishOutcome{InFlight: true}, nil
	}

	// The triggering request returns now; the cycle runs to completion on
	// its own context and reports through lecture state only.
	go func() {
		defer release()
		bgCtx := context.Background()
		if _, err := s.ProcessLecture(bgCtx, lectureID, ownerUserID); err != nil {
			s.log.Error("Publish cycle failed",
				"lecture_id", lectureID.String(),
				"error", err.Error(),
			)
		}
	}()

	return PublishOutcome{Accepted: true}, nil
}

func (s *publicationService) ProcessLecture(ctx context.Context, lectureID uuid.UUID, ownerUserID uuid.UUID) (*PublishReport, error) {
	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}

	materials, err := s.materialRepo.GetByLectureID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if len(materials) == 0 {
		return nil, fmt.Errorf("%w: lecture has no materials", apperr.ErrValidation)
	}

	materialIDs := make([]uuid.UUID, 0, len(materials))
	for _, m := range materials {
		materialIDs = append(materialIDs, m.ID)
	}
	existing, err := s.pmRepo.GetByMaterialIDs(ctx, nil, materialIDs)
	if err != nil {
		return nil, err
	}
	processed := make(map[uuid.UUID]bool, len(existing))
	for _, pm := range existing {
		processed[pm.MaterialID] = true
	}

	report := &PublishReport{Total: len(materials)}

	var pending []*types.Material
	for _, m := range materials {
		if processed[m.ID] {
			report.Succeeded++
			continue
		}
		pending = append(pending, m)
	}

	results := make([]*MaterialError, len(pending))

	limit := s.workerCap
	if len(pending) < limit {
		limit = len(pending)
	}
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, material := range pending {
		g.Go(func() error {
			if err := s.processMaterial(gctx, material, ownerUserID); err != nil {
				s.log.Error("Material processing failed",
					"lecture_id", lectureID.String(),
					"material_id", material.ID.String(),
					"file_name", material.FileName,
					"error", err.Error(),
				)
				results[i] = &MaterialError{FileName: material.FileName, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res != nil {
			report.Errors = append(report.Errors, *res)
		} else {
			report.Succeeded++
		}
	}

	if report.Succeeded < report.Total || len(report.Errors) > 0 {
		msg := formatPublishErrors(report.Errors)
		if err := s.lectureRepo.SetLastPublishError(ctx, nil, lectureID, msg); err != nil {
			s.log.Error("Recording publish errors failed", "lecture_id", lectureID.String(), "error", err.Error())
		}
		s.log.Warn("Publish cycle incomplete",
			"lecture_id", lectureID.String(),
			"succeeded", report.Succeeded,
			"total", report.Total,
			"errors", msg,
		)
		return report, nil
	}

	if err := s.finalizePublish(ctx, lecture); err != nil {
		return report, err
	}
	report.Published = true

	s.log.Info("Lecture published",
		"lecture_id", lectureID.String(),
		"materials", report.Total,
	)
	return report, nil
}

// processMaterial extracts and embeds one material and commits the resulting
// row immediately. This commit is deliberately independent of the final
// publication transaction so a retry after sibling failures skips it.
func (s *publicationService) processMaterial(ctx context.Context, material *types.Material, ownerUserID uuid.UUID) error {
	result, err := s.extractor.Extract(ctx, material)
	if err != nil {
		return err
	}
	if !result.HasContent {
		return fmt.Errorf("%w: no textual content in %s", apperr.ErrFormat, material.FileName)
	}

	var embeddingJSON []byte
	if vec, err := s.embedder.GenerateEmbedding(ctx, result.Text); err == nil && vec != nil {
		if raw, mErr := json.Marshal(vec); mErr == nil {
			embeddingJSON = raw
		}
	}

	text := result.Text
	pm := &types.ProcessedMaterial{
		ID:            uuid.New(),
		MaterialID:    material.ID,
		LectureID:     material.LectureID,
		FileType:      material.FileType,
		ProcessedText: &text,
		Embedding:     embeddingJSON,
		ProcessedAt:   time.Now(),
	}
	if ownerUserID != uuid.Nil {
		owner := ownerUserID
		pm.OwnerUserID = &owner
	}

	_, err = s.pmRepo.Create(ctx, nil, pm)
	return err
}

// finalizePublish flips the published flag and, for SHARED quiz mode,
// persists the generated test in the same transaction. Quiz generation is
// best-effort: an empty generation result publishes the lecture without a
// test rather than blocking it.
func (s *publicationService) finalizePublish(ctx context.Context, lecture *types.Lecture) error {
	var test *types.Test
	var questions []*types.Question

	if lecture.GenerateTest && lecture.TestGenerationMode == types.TestModeShared {
		if existing, err := s.testRepo.GetLatestShared(ctx, nil, lecture.ID); err != nil {
			return err
		} else if existing == nil {
			test, questions = s.buildSharedTest(ctx, lecture.ID)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lectureRepo.MarkPublished(ctx, tx, lecture.ID); err != nil {
			return err
		}
		if test == nil {
			return nil
		}
		if _, err := s.testRepo.Create(ctx, tx, test); err != nil {
			return err
		}
		_, err := s.questionRepo.Create(ctx, tx, questions)
		return err
	})
}

// buildSharedTest generates questions per processed material and assembles
// an unpersisted shared test. Returns (nil, nil) when generation yields no
// questions at all.
func (s *publicationService) buildSharedTest(ctx context.Context, lectureID uuid.UUID) (*types.Test, []*types.Question) {
	pms, err := s.pmRepo.GetTextedByLectureID(ctx, nil, lectureID)
	if err != nil {
		s.log.Error("Loading processed text for quiz failed", "lecture_id", lectureID.String(), "error", err.Error())
		return nil, nil
	}

	testID := uuid.New()
	var questions []*types.Question
	orderIndex := 0
	for _, pm := range pms {
		if pm.ProcessedText == nil || strings.TrimSpace(*pm.ProcessedText) == "" {
			continue
		}
		drafts := s.questioner.GenerateQuestions(ctx, *pm.ProcessedText)
		for _, d := range drafts {
			optionsJSON, mErr := json.Marshal(d.Options)
			if mErr != nil {
				continue
			}
			questions = append(questions, &types.Question{
				ID:            uuid.New(),
				TestID:        testID,
				QuestionText:  d.QuestionText,
				CorrectAnswer: d.CorrectAnswer,
				Options:       optionsJSON,
				QuestionType:  d.QuestionType,
				OrderIndex:    orderIndex,
			})
			orderIndex++
		}
	}

	if len(questions) == 0 {
		s.log.Warn("Quiz generation produced no questions, publishing without test", "lecture_id", lectureID.String())
		return nil, nil
	}

	return &types.Test{
		ID:        testID,
		LectureID: lectureID,
		CreatedAt: time.Now(),
	}, questions
}

func formatPublishErrors(errs []MaterialError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %v", e.FileName, e.Err))
	}
	return strings.Join(parts, "; ")
}

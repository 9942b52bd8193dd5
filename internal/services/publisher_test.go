package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
	"github.com/google/uuid"
)

type publisherFixture struct {
	gdb        *gorm.DB
	repos      testRepos
	extractor  *fakeExtractor
	questioner *fakeQuestioner
	svc        PublicationService
}

func newPublisherFixture(t *testing.T) *publisherFixture {
	t.Helper()
	gdb := newTestDB(t)
	r := newTestRepos(gdb)
	ext := newFakeExtractor()
	q := &fakeQuestioner{}
	svc := NewPublicationService(
		logger.NewNop(), gdb,
		r.lecture, r.material, r.pm, r.test, r.question,
		ext, &fakeEmbedder{}, q, NewLocalPublishLock(),
	)
	return &publisherFixture{gdb: gdb, repos: r, extractor: ext, questioner: q, svc: svc}
}

func TestProcessLecturePartialFailureBlocksPublication(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "slides.pdf", "pdf", 0)
	seedMaterial(t, f.repos, lecture.ID, "image.png", "document", 1)
	f.extractor.texts["slides.pdf"] = strings.Repeat("Лекция о сортировке. ", 100)
	// image.png has no canned text, so extraction reports no content.

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Succeeded != 1 || len(report.Errors) != 1 || report.Published {
		t.Fatalf("report = %+v, want 1 succeeded, 1 error, unpublished", report)
	}
	if report.Errors[0].FileName != "image.png" {
		t.Errorf("unexpected failing material: %s", report.Errors[0].FileName)
	}

	got, err := f.repos.lecture.GetByID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("reload lecture: %v", err)
	}
	if got.Published {
		t.Error("lecture must stay unpublished after a partial failure")
	}
	if !strings.Contains(got.LastPublishError, "image.png") {
		t.Errorf("last_publish_error should name the failing material, got %q", got.LastPublishError)
	}

	// The succeeded material is committed, the failed one is not.
	pms, err := f.repos.pm.GetTextedByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load processed materials: %v", err)
	}
	if len(pms) != 1 {
		t.Fatalf("expected 1 processed material, got %d", len(pms))
	}

	// No quiz artifacts exist until the lecture actually publishes.
	tests, err := f.repos.test.GetByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load tests: %v", err)
	}
	if len(tests) != 0 {
		t.Fatalf("expected no tests before publication, got %d", len(tests))
	}
}

func TestProcessLectureRetrySkipsProcessedMaterials(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "slides.pdf", "pdf", 0)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 1)
	f.extractor.texts["slides.pdf"] = strings.Repeat("Лекция о сортировке. ", 100)
	f.extractor.errs["notes.txt"] = fmt.Errorf("%w: storage unavailable", apperr.ErrExternal)

	if _, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// Storage recovers; the retry must reprocess only the failed material.
	delete(f.extractor.errs, "notes.txt")
	f.extractor.texts["notes.txt"] = "Короткий конспект лекции."

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if !report.Published || report.Succeeded != 2 {
		t.Fatalf("report = %+v, want published with 2 succeeded", report)
	}
	if f.extractor.called["slides.pdf"] != 1 {
		t.Errorf("already-processed material re-extracted %d times", f.extractor.called["slides.pdf"])
	}
	if f.extractor.called["notes.txt"] != 2 {
		t.Errorf("failed material should be retried once, called %d times", f.extractor.called["notes.txt"])
	}

	got, err := f.repos.lecture.GetByID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("reload lecture: %v", err)
	}
	if !got.Published {
		t.Error("lecture should be published after the retry")
	}
	if got.LastPublishError != "" {
		t.Errorf("last_publish_error should be cleared on success, got %q", got.LastPublishError)
	}
}

func TestProcessLectureSharedQuizCreation(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "lecture.docx", "document", 0)
	f.extractor.texts["lecture.docx"] = strings.Repeat("а", 2000)

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Published {
		t.Fatalf("report = %+v, want published", report)
	}

	tests, err := f.repos.test.GetByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load tests: %v", err)
	}
	if len(tests) != 1 {
		t.Fatalf("expected exactly 1 shared test, got %d", len(tests))
	}
	if tests[0].UserID != nil {
		t.Error("shared test must not be bound to a student")
	}

	questions, err := f.repos.question.GetByTestID(ctx, nil, tests[0].ID)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions for a 2000-char text, got %d", len(questions))
	}
	for i, q := range questions {
		if q.OrderIndex != i {
			t.Errorf("question %d has order_index %d", i, q.OrderIndex)
		}
		if q.QuestionType != types.QuestionTypeMultipleChoice {
			t.Errorf("question %d type = %q", i, q.QuestionType)
		}
	}
}

func TestProcessLectureRepublishCreatesNoDuplicates(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "lecture.docx", "document", 0)
	f.extractor.texts["lecture.docx"] = strings.Repeat("а", 2000)

	if _, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if _, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if f.extractor.called["lecture.docx"] != 1 {
		t.Errorf("material re-extracted on republish: %d calls", f.extractor.called["lecture.docx"])
	}

	pms, err := f.repos.pm.GetTextedByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load processed materials: %v", err)
	}
	if len(pms) != 1 {
		t.Fatalf("expected 1 processed material, got %d", len(pms))
	}

	tests, err := f.repos.test.GetByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load tests: %v", err)
	}
	if len(tests) != 1 {
		t.Fatalf("republish duplicated the shared test: %d tests", len(tests))
	}
}

func TestProcessLecturePublishesWithoutQuizWhenGenerationFails(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 0)
	f.extractor.texts["notes.txt"] = "Конспект."
	f.questioner.fail = true

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Published {
		t.Fatal("quiz generation failure must not block publication")
	}

	tests, err := f.repos.test.GetByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load tests: %v", err)
	}
	if len(tests) != 0 {
		t.Fatalf("expected no test when generation yields nothing, got %d", len(tests))
	}
}

func TestProcessLectureNoQuizWhenGenerationDisabled(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, false, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 0)
	f.extractor.texts["notes.txt"] = "Конспект."

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Published {
		t.Fatal("expected publication")
	}
	if f.questioner.calls != 0 {
		t.Errorf("question generation called %d times with generation disabled", f.questioner.calls)
	}
}

func TestProcessLecturePerStudentModeDefersQuiz(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, true, types.TestModePerStudent)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 0)
	f.extractor.texts["notes.txt"] = "Конспект."

	report, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Published {
		t.Fatal("expected publication")
	}
	// Per-student tests materialize lazily on first access, not at publish.
	tests, err := f.repos.test.GetByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load tests: %v", err)
	}
	if len(tests) != 0 {
		t.Fatalf("per-student mode must not create tests at publish time, got %d", len(tests))
	}
}

func TestProcessLectureNoMaterials(t *testing.T) {
	f := newPublisherFixture(t)
	lecture := seedLecture(t, f.repos, false, types.TestModeShared)

	_, err := f.svc.ProcessLecture(context.Background(), lecture.ID, uuid.Nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessLectureRecordsOwner(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, false, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 0)
	f.extractor.texts["notes.txt"] = "Конспект."

	owner := uuid.New()
	if _, err := f.svc.ProcessLecture(ctx, lecture.ID, owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pms, err := f.repos.pm.GetTextedByLectureID(ctx, nil, lecture.ID)
	if err != nil {
		t.Fatalf("load processed materials: %v", err)
	}
	if len(pms) != 1 || pms[0].OwnerUserID == nil || *pms[0].OwnerUserID != owner {
		t.Fatalf("owner not recorded on processed material: %+v", pms)
	}
}

func TestPublishAlreadyPublishedLecture(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	lecture := seedLecture(t, f.repos, false, types.TestModeShared)
	seedMaterial(t, f.repos, lecture.ID, "notes.txt", "document", 0)
	f.extractor.texts["notes.txt"] = "Конспект."

	if _, err := f.svc.ProcessLecture(ctx, lecture.ID, uuid.Nil); err != nil {
		t.Fatalf("publish cycle: %v", err)
	}

	outcome, err := f.svc.Publish(ctx, lecture.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.AlreadyPublished || outcome.Accepted {
		t.Fatalf("outcome = %+v, want already_published", outcome)
	}
}

func TestPublishUnknownLecture(t *testing.T) {
	f := newPublisherFixture(t)
	_, err := f.svc.Publish(context.Background(), uuid.New(), uuid.Nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFormatPublishErrors(t *testing.T) {
	msg := formatPublishErrors([]MaterialError{
		{FileName: "a.pdf", Err: fmt.Errorf("broken xref")},
		{FileName: "b.mp4", Err: fmt.Errorf("transcription timed out")},
	})
	if msg != "a.pdf: broken xref; b.mp4: transcription timed out" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if formatPublishErrors(nil) != "" {
		t.Fatal("empty error list should format to empty string")
	}
}

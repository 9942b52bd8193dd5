package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edulight/edulight-backend/internal/db"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
	"github.com/edulight/edulight-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return gdb
}

type testRepos struct {
	user     repos.UserRepo
	group    repos.GroupRepo
	course   repos.CourseRepo
	lecture  repos.LectureRepo
	material repos.MaterialRepo
	pm       repos.ProcessedMaterialRepo
	test     repos.TestRepo
	question repos.QuestionRepo
	attempt  repos.TestAttemptRepo
}

func newTestRepos(gdb *gorm.DB) testRepos {
	log := logger.NewNop()
	return testRepos{
		user:     repos.NewUserRepo(gdb, log),
		group:    repos.NewGroupRepo(gdb, log),
		course:   repos.NewCourseRepo(gdb, log),
		lecture:  repos.NewLectureRepo(gdb, log),
		material: repos.NewMaterialRepo(gdb, log),
		pm:       repos.NewProcessedMaterialRepo(gdb, log),
		test:     repos.NewTestRepo(gdb, log),
		question: repos.NewQuestionRepo(gdb, log),
		attempt:  repos.NewTestAttemptRepo(gdb, log),
	}
}

// fakeExtractor maps material file names to canned outcomes. Extraction runs
// on a worker pool, so access is guarded.
type fakeExtractor struct {
	mu     sync.Mutex
	texts  map[string]string
	errs   map[string]error
	called map[string]int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		texts:  map[string]string{},
		errs:   map[string]error{},
		called: map[string]int{},
	}
}

func (f *fakeExtractor) Extract(_ context.Context, material *types.Material) (ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called[material.FileName]++
	if err, ok := f.errs[material.FileName]; ok {
		return ExtractionResult{}, err
	}
	text, ok := f.texts[material.FileName]
	if !ok || text == "" {
		return ExtractionResult{HasContent: false}, nil
	}
	return ExtractionResult{Text: text, HasContent: true}, nil
}

type fakeEmbedder struct {
	vec  []float32
	fail bool
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	if f.fail {
		return nil, nil
	}
	if f.vec == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.vec, nil
}

// fakeQuestioner produces the tier-appropriate number of drafts so tests can
// assert question counts without a completion service.
type fakeQuestioner struct {
	fail  bool
	calls int
}

func (f *fakeQuestioner) GenerateQuestions(_ context.Context, text string) []QuestionDraft {
	f.calls++
	if f.fail {
		return nil
	}
	n := QuestionCountFor(len([]rune(text)))
	drafts := make([]QuestionDraft, 0, n)
	for i := 0; i < n; i++ {
		drafts = append(drafts, QuestionDraft{
			QuestionText:  fmt.Sprintf("Question %d", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "B",
			QuestionType:  types.QuestionTypeMultipleChoice,
		})
	}
	return drafts
}

// fakeGigaChat implements GigaChatClient for embedding-path tests.
type fakeGigaChat struct {
	embedFn    func(text string) ([]float32, error)
	completeFn func(prompt string) (string, error)
}

func (f *fakeGigaChat) Embed(_ context.Context, input string) ([]float32, error) {
	if f.embedFn == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.embedFn(input)
}

func (f *fakeGigaChat) Complete(_ context.Context, prompt string) (string, error) {
	if f.completeFn == nil {
		return "", fmt.Errorf("not implemented")
	}
	return f.completeFn(prompt)
}

func seedLecture(t *testing.T, r testRepos, generateTest bool, mode string) *types.Lecture {
	t.Helper()
	ctx := context.Background()

	course := &types.Course{ID: uuid.New(), Name: "Algorithms"}
	if _, err := r.course.Create(ctx, nil, course); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	lecture := &types.Lecture{
		ID:                 uuid.New(),
		CourseID:           course.ID,
		Name:               "Sorting",
		CreatedAt:          time.Now(),
		GenerateTest:       generateTest,
		TestGenerationMode: mode,
		TestMaxAttempts:    1,
	}
	if _, err := r.lecture.Create(ctx, nil, lecture); err != nil {
		t.Fatalf("seed lecture: %v", err)
	}
	return lecture
}

func seedMaterial(t *testing.T, r testRepos, lectureID uuid.UUID, fileName, fileType string, order int) *types.Material {
	t.Helper()
	m := &types.Material{
		ID:         uuid.New(),
		LectureID:  lectureID,
		FileName:   fileName,
		FilePath:   "uploads/" + fileName,
		FileType:   fileType,
		OrderIndex: order,
	}
	if _, err := r.material.Create(context.Background(), nil, []*types.Material{m}); err != nil {
		t.Fatalf("seed material: %v", err)
	}
	return m
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
	"github.com/edulight/edulight-backend/internal/requestdata"
	"github.com/edulight/edulight-backend/internal/types"
)

// QuestionView is a question as served to a caller. CorrectAnswer is blank
// for students unless the show-answers flag is set AND the deadline passed;
// teachers and admins always see it.
type QuestionView struct {
	ID            uuid.UUID `json:"id"`
	TestID        uuid.UUID `json:"test_id"`
	QuestionText  string    `json:"question_text"`
	CorrectAnswer string    `json:"correct_answer"`
	Options       []string  `json:"options"`
	QuestionType  string    `json:"question_type"`
	OrderIndex    int       `json:"order_index"`
}

type TestView struct {
	ID        uuid.UUID      `json:"id"`
	LectureID uuid.UUID      `json:"lecture_id"`
	CreatedAt time.Time      `json:"created_at"`
	Questions []QuestionView `json:"questions"`
}

// AnswerResult is the per-question outcome of grading one attempt.
type AnswerResult struct {
	QuestionID    uuid.UUID `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	StudentAnswer string    `json:"student_answer"`
	CorrectAnswer string    `json:"correct_answer"`
	IsCorrect     bool      `json:"is_correct"`
	Options       []string  `json:"options,omitempty"`
}

type GradingResult struct {
	TestID         uuid.UUID      `json:"test_id"`
	TotalQuestions int            `json:"total_questions"`
	CorrectAnswers int            `json:"correct_answers"`
	Score          float64        `json:"score"`
	Results        []AnswerResult `json:"results"`
	AttemptsUsed   int64          `json:"attempts_used"`
	MaxAttempts    int            `json:"max_attempts"`
	ShowAnswers    bool           `json:"show_answers"`
}

type AttemptView struct {
	ID             uuid.UUID      `json:"id"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"total_questions"`
	CompletedAt    time.Time      `json:"completed_at"`
	Results        []AnswerResult `json:"results"`
}

type AttemptsReport struct {
	TestID      uuid.UUID     `json:"test_id"`
	Attempts    []AttemptView `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	ShowAnswers bool          `json:"show_answers"`
	MaxScore    float64       `json:"max_score"`
}

// StudentAttemptView extends AttemptView with the student identity, for the
// teacher-facing all-attempts listing.
type StudentAttemptView struct {
	AttemptView
	TestID    uuid.UUID  `json:"test_id"`
	UserID    uuid.UUID  `json:"user_id"`
	UserName  string     `json:"user_name"`
	UserLogin string     `json:"user_login"`
	GroupID   *uuid.UUID `json:"group_id,omitempty"`
	GroupName string     `json:"group_name,omitempty"`
}

type AllAttemptsReport struct {
	Attempts     []StudentAttemptView `json:"attempts"`
	AverageScore float64              `json:"average_score"`
	ShowAnswers  bool                 `json:"show_answers"`
}

// TestAssignService serves quizzes to students and teachers: lazy
// per-student test creation, attempt limits, deadline gating, answer
// redaction, and grading.
type TestAssignService interface {
	GetTest(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*TestView, error)
	SubmitAnswers(ctx context.Context, lectureID uuid.UUID, answers map[string]string, actor requestdata.Actor) (*GradingResult, error)
	ListAttempts(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*AttemptsReport, error)
	ListAllAttempts(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*AllAttemptsReport, error)
}

type testAssignService struct {
	log *logger.Logger
	db  *gorm.DB

	lectureRepo  repos.LectureRepo
	courseRepo   repos.CourseRepo
	pmRepo       repos.ProcessedMaterialRepo
	testRepo     repos.TestRepo
	questionRepo repos.QuestionRepo
	attemptRepo  repos.TestAttemptRepo
	userRepo     repos.UserRepo
	groupRepo    repos.GroupRepo

	questioner QuestionGenService
}

func NewTestAssignService(
	log *logger.Logger,
	db *gorm.DB,
	lectureRepo repos.LectureRepo,
	courseRepo repos.CourseRepo,
	pmRepo repos.ProcessedMaterialRepo,
	testRepo repos.TestRepo,
	questionRepo repos.QuestionRepo,
	attemptRepo repos.TestAttemptRepo,
	userRepo repos.UserRepo,
	groupRepo repos.GroupRepo,
	questioner QuestionGenService,
) TestAssignService {
	return &testAssignService{
		log:          log.With("service", "TestAssignService"),
		db:           db,
		lectureRepo:  lectureRepo,
		courseRepo:   courseRepo,
		pmRepo:       pmRepo,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		userRepo:     userRepo,
		groupRepo:    groupRepo,
		questioner:   questioner,
	}
}

// checkLectureAccess enforces role-based visibility: teachers must teach the
// course, students must belong to one of its groups and the lecture must be
// published, admins pass.
func (s *testAssignService) checkLectureAccess(ctx context.Context, lecture *types.Lecture, actor requestdata.Actor) error {
	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleTeacher:
		teacherIDs, err := s.courseRepo.TeacherIDs(ctx, nil, lecture.CourseID)
		if err != nil {
			return err
		}
		for _, id := range teacherIDs {
			if id == actor.UserID {
				return nil
			}
		}
		return fmt.Errorf("%w: not a teacher of this course", apperr.ErrAccess)
	case types.RoleStudent:
		if !lecture.Published {
			return fmt.Errorf("%w: lecture is not published", apperr.ErrAccess)
		}
		if actor.GroupID == nil {
			return fmt.Errorf("%w: student has no group", apperr.ErrAccess)
		}
		groupIDs, err := s.courseRepo.GroupIDs(ctx, nil, lecture.CourseID)
		if err != nil {
			return err
		}
		for _, id := range groupIDs {
			if id == *actor.GroupID {
				return nil
			}
		}
		return fmt.Errorf("%w: group has no access to this course", apperr.ErrAccess)
	default:
		return fmt.Errorf("%w: unknown role %q", apperr.ErrAccess, actor.Role)
	}
}

func deadlinePassed(lecture *types.Lecture) bool {
	return lecture.TestDeadline != nil && time.Now().After(*lecture.TestDeadline)
}

// answersVisible is the AND of the explicit config flag and an expired
// deadline; until the deadline passes students never see correct answers.
func answersVisible(lecture *types.Lecture) bool {
	return lecture.TestShowAnswers && deadlinePassed(lecture)
}

func decodeOptions(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var opts []string
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil
	}
	return opts
}

// gradeAnswer scores one submitted answer. Multiple choice compares the
// submitted option index against the position of the correct answer within
// the options list; out-of-range or unparseable indices are incorrect. Open
// answers match case-insensitively, with containment in either direction
// accepted.
func gradeAnswer(question *types.Question, studentAnswer string) (bool, string) {
	if question.QuestionType == types.QuestionTypeMultipleChoice {
		options := decodeOptions(question.Options)
		studentIndex := -1
		if studentAnswer != "" {
			if idx, err := strconv.Atoi(strings.TrimSpace(studentAnswer)); err == nil {
				studentIndex = idx
			}
		}
		correctIndex := -1
		for idx, opt := range options {
			if opt == question.CorrectAnswer {
				correctIndex = idx
				break
			}
		}
		display := ""
		if studentIndex >= 0 && studentIndex < len(options) {
			display = options[studentIndex]
		}
		return studentIndex >= 0 && studentIndex == correctIndex, display
	}

	got := strings.ToLower(strings.TrimSpace(studentAnswer))
	want := strings.ToLower(strings.TrimSpace(question.CorrectAnswer))
	correct := got == want ||
		(want != "" && strings.Contains(got, want)) ||
		(got != "" && strings.Contains(want, got))
	return correct, studentAnswer
}

// resolveTest finds the test the actor interacts with: the student-owned one
// in PER_STUDENT mode, the shared one otherwise. Returns nil when none
// exists yet.
func (s *testAssignService) resolveTest(ctx context.Context, lecture *types.Lecture, actor requestdata.Actor) (*types.Test, error) {
	if lecture.TestGenerationMode == types.TestModePerStudent && actor.IsStudent() {
		return s.testRepo.GetLatestForStudent(ctx, nil, lecture.ID, actor.UserID)
	}
	return s.testRepo.GetLatestShared(ctx, nil, lecture.ID)
}

func (s *testAssignService) enforceAttemptLimit(ctx context.Context, lecture *types.Lecture, test *types.Test, actor requestdata.Actor) (int64, error) {
	count, err := s.attemptRepo.CountByTestAndUser(ctx, nil, test.ID, actor.UserID)
	if err != nil {
		return 0, err
	}
	if lecture.TestMaxAttempts > 0 && count >= int64(lecture.TestMaxAttempts) {
		return count, fmt.Errorf("%w: attempt limit of %d reached", apperr.ErrAccess, lecture.TestMaxAttempts)
	}
	return count, nil
}

func (s *testAssignService) GetTest(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*TestView, error) {
	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLectureAccess(ctx, lecture, actor); err != nil {
		return nil, err
	}
	if !lecture.GenerateTest {
		return nil, fmt.Errorf("%w: quiz generation is disabled for this lecture", apperr.ErrNotFound)
	}

	test, err := s.resolveTest(ctx, lecture, actor)
	if err != nil {
		return nil, err
	}

	if actor.IsStudent() && test != nil {
		if _, err := s.enforceAttemptLimit(ctx, lecture, test, actor); err != nil {
			return nil, err
		}
	}

	if test == nil {
		if lecture.TestGenerationMode == types.TestModePerStudent && actor.IsStudent() {
			test, err = s.generateStudentTest(ctx, lecture.ID, actor.UserID)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, fmt.Errorf("%w: no test exists for this lecture yet", apperr.ErrNotFound)
		}
	}

	questions, err := s.questionRepo.GetByTestID(ctx, nil, test.ID)
	if err != nil {
		return nil, err
	}

	redact := actor.IsStudent() && !answersVisible(lecture)
	view := &TestView{
		ID:        test.ID,
		LectureID: test.LectureID,
		CreatedAt: test.CreatedAt,
		Questions: make([]QuestionView, 0, len(questions)),
	}
	for _, q := range questions {
		answer := q.CorrectAnswer
		if redact {
			answer = ""
		}
		view.Questions = append(view.Questions, QuestionView{
			ID:            q.ID,
			TestID:        q.TestID,
			QuestionText:  q.QuestionText,
			CorrectAnswer: answer,
			Options:       decodeOptions(q.Options),
			QuestionType:  q.QuestionType,
			OrderIndex:    q.OrderIndex,
		})
	}
	return view, nil
}

// generateStudentTest builds a fresh per-student variant from all processed
// material text of the lecture, persisting test and questions atomically.
func (s *testAssignService) generateStudentTest(ctx context.Context, lectureID, studentID uuid.UUID) (*types.Test, error) {
	s.log.Info("Generating per-student test", "lecture_id", lectureID.String(), "student_id", studentID.String())

	pms, err := s.pmRepo.GetTextedByLectureID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("%w: question generation produced no questions", apperr.ErrExternal)
	}

	owner := studentID
	test := &types.Test{
		ID:        testID,
		LectureID: lectureID,
		UserID:    &owner,
		CreatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.testRepo.Create(ctx, tx, test); err != nil {
			return err
		}
		_, err := s.questionRepo.Create(ctx, tx, questions)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Per-student test created",
		"test_id", testID.String(),
		"questions", len(questions),
	)
	return test, nil
}

func (s *testAssignService) SubmitAnswers(ctx context.Context, lectureID uuid.UUID, answers map[string]string, actor requestdata.Actor) (*GradingResult, error) {
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students take tests", apperr.ErrAccess)
	}
	if answers == nil {
		return nil, fmt.Errorf("%w: answers payload is required", apperr.ErrValidation)
	}

	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLectureAccess(ctx, lecture, actor); err != nil {
		return nil, err
	}
	if !lecture.GenerateTest {
		return nil, fmt.Errorf("%w: quiz generation is disabled for this lecture", apperr.ErrNotFound)
	}
	if deadlinePassed(lecture) {
		return nil, fmt.Errorf("%w: test deadline has passed", apperr.ErrAccess)
	}

	test, err := s.resolveTest(ctx, lecture, actor)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return nil, fmt.Errorf("%w: test not found", apperr.ErrNotFound)
	}

	used, err := s.enforceAttemptLimit(ctx, lecture, test, actor)
	if err != nil {
		return nil, err
	}

	questions, err := s.questionRepo.GetByTestID(ctx, nil, test.ID)
	if err != nil {
		return nil, err
	}

	results := make([]AnswerResult, 0, len(questions))
	correct := 0
	for _, q := range questions {
		submitted := answers[q.ID.String()]
		isCorrect, display := gradeAnswer(q, submitted)
		if isCorrect {
			correct++
		}
		results = append(results, AnswerResult{
			QuestionID:    q.ID,
			QuestionText:  q.QuestionText,
			StudentAnswer: display,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     isCorrect,
		})
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("%w: answers payload not serializable", apperr.ErrValidation)
	}
	attempt := &types.TestAttempt{
		ID:             uuid.New(),
		TestID:         test.ID,
		UserID:         actor.UserID,
		Answers:        answersJSON,
		Score:          correct,
		TotalQuestions: len(questions),
		CompletedAt:    time.Now(),
	}
	if _, err := s.attemptRepo.Create(ctx, nil, attempt); err != nil {
		return nil, err
	}

	show := answersVisible(lecture)
	if !show {
		for i := range results {
			results[i].CorrectAnswer = ""
		}
	}

	score := 0.0
	if len(questions) > 0 {
		score = math.Round(float64(correct)/float64(len(questions))*10000) / 100
	}

	return &GradingResult{
		TestID:         test.ID,
		TotalQuestions: len(questions),
		CorrectAnswers: correct,
		Score:          score,
		Results:        results,
		AttemptsUsed:   used + 1,
		MaxAttempts:    lecture.TestMaxAttempts,
		ShowAnswers:    show,
	}, nil
}

func (s *testAssignService) ListAttempts(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*AttemptsReport, error) {
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students list their own attempts", apperr.ErrAccess)
	}

	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLectureAccess(ctx, lecture, actor); err != nil {
		return nil, err
	}
	if !lecture.GenerateTest {
		return nil, fmt.Errorf("%w: quiz generation is disabled for this lecture", apperr.ErrNotFound)
	}

	test, err := s.resolveTest(ctx, lecture, actor)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return nil, fmt.Errorf("%w: test not found", apperr.ErrNotFound)
	}

	attempts, err := s.attemptRepo.GetByTestAndUser(ctx, nil, test.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.GetByTestID(ctx, nil, test.ID)
	if err != nil {
		return nil, err
	}

	show := answersVisible(lecture)
	report := &AttemptsReport{
		TestID:      test.ID,
		Attempts:    make([]AttemptView, 0, len(attempts)),
		MaxAttempts: lecture.TestMaxAttempts,
		ShowAnswers: show,
	}
	for _, attempt := range attempts {
		view := AttemptView{
			ID:             attempt.ID,
			Score:          attempt.Score,
			TotalQuestions: attempt.TotalQuestions,
			CompletedAt:    attempt.CompletedAt,
			Results:        s.replayAttempt(attempt, questions, show),
		}
		report.Attempts = append(report.Attempts, view)
		if attempt.TotalQuestions > 0 {
			pct := float64(attempt.Score) / float64(attempt.TotalQuestions) * 100
			if pct > report.MaxScore {
				report.MaxScore = math.Round(pct*100) / 100
			}
		}
	}
	return report, nil
}

// replayAttempt regrades a stored answers payload against the current
// question set, producing per-question results with redaction applied.
func (s *testAssignService) replayAttempt(attempt *types.TestAttempt, questions []*types.Question, show bool) []AnswerResult {
	var answers map[string]string
	if err := json.Unmarshal(attempt.Answers, &answers); err != nil {
		answers = map[string]string{}
	}

	results := make([]AnswerResult, 0, len(questions))
	for _, q := range questions {
		submitted := answers[q.ID.String()]
		isCorrect, display := gradeAnswer(q, submitted)
		answer := ""
		if show {
			answer = q.CorrectAnswer
		}
		results = append(results, AnswerResult{
			QuestionID:    q.ID,
			QuestionText:  q.QuestionText,
			StudentAnswer: display,
			CorrectAnswer: answer,
			IsCorrect:     isCorrect,
			Options:       decodeOptions(q.Options),
		})
	}
	return results
}

func (s *testAssignService) ListAllAttempts(ctx context.Context, lectureID uuid.UUID, actor requestdata.Actor) (*AllAttemptsReport, error) {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only teachers and admins list all attempts", apperr.ErrAccess)
	}

	lecture, err := s.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLectureAccess(ctx, lecture, actor); err != nil {
		return nil, err
	}
	if !lecture.GenerateTest {
		return nil, fmt.Errorf("%w: quiz generation is disabled for this lecture", apperr.ErrNotFound)
	}

	tests, err := s.testRepo.GetByLectureID(ctx, nil, lectureID)
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, fmt.Errorf("%w: no tests exist for this lecture", apperr.ErrNotFound)
	}

	testIDs := make([]uuid.UUID, 0, len(tests))
	questionsByTest := make(map[uuid.UUID][]*types.Question, len(tests))
	for _, t := range tests {
		testIDs = append(testIDs, t.ID)
		qs, err := s.questionRepo.GetByTestID(ctx, nil, t.ID)
		if err != nil {
			return nil, err
		}
		questionsByTest[t.ID] = qs
	}

	attempts, err := s.attemptRepo.GetByTestIDs(ctx, nil, testIDs)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(attempts))
	seen := make(map[uuid.UUID]bool)
	for _, a := range attempts {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			userIDs = append(userIDs, a.UserID)
		}
	}
	users, err := s.userRepo.GetByIDs(ctx, nil, userIDs)
	if err != nil {
		return nil, err
	}
	usersByID := make(map[uuid.UUID]*types.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	groupNames, err := s.groupNamesFor(ctx, users)
	if err != nil {
		return nil, err
	}

	// Teachers review answers regardless of the student-facing gate.
	report := &AllAttemptsReport{
		Attempts:    make([]StudentAttemptView, 0, len(attempts)),
		ShowAnswers: true,
	}
	totalScore, totalQuestions := 0, 0
	for _, attempt := range attempts {
		student, ok := usersByID[attempt.UserID]
		if !ok {
			continue
		}
		questions := questionsByTest[attempt.TestID]
		view := StudentAttemptView{
			AttemptView: AttemptView{
				ID:             attempt.ID,
				Score:          attempt.Score,
				TotalQuestions: attempt.TotalQuestions,
				CompletedAt:    attempt.CompletedAt,
				Results:        s.replayAttempt(attempt, questions, true),
			},
			TestID:    attempt.TestID,
			UserID:    attempt.UserID,
			UserName:  student.FullName,
			UserLogin: student.Login,
			GroupID:   student.GroupID,
		}
		if student.GroupID != nil {
			view.GroupName = groupNames[*student.GroupID]
		}
		report.Attempts = append(report.Attempts, view)
		totalScore += attempt.Score
		totalQuestions += attempt.TotalQuestions
	}
	if totalQuestions > 0 {
		report.AverageScore = math.Round(float64(totalScore)/float64(totalQuestions)*10000) / 100
	}
	return report, nil
}

func (s *testAssignService) groupNamesFor(ctx context.Context, users []*types.User) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(users))
	seen := make(map[uuid.UUID]bool)
	for _, u := range users {
		if u.GroupID != nil && !seen[*u.GroupID] {
			seen[*u.GroupID] = true
			ids = append(ids, *u.GroupID)
		}
	}
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	groups, err := s.groupRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(groups))
	for _, g := range groups {
		out[g.ID] = g.Name
	}
	return out, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
	"github.com/edulight/edulight-backend/internal/utils"
)

// QuestionDraft is one generated question before persistence; the caller
// assigns the running order index across all materials of a lecture.
type QuestionDraft struct {
	QuestionText  string
	Options       []string
	CorrectAnswer string
	QuestionType  string
}

// QuestionGenService turns extracted material text into quiz questions via
// the completion service. Generation failures for one text yield no drafts
// and never an error the caller has to special-case; sibling materials are
// unaffected.
type QuestionGenService interface {
	GenerateQuestions(ctx context.Context, text string) []QuestionDraft
}

type questionGenService struct {
	log    *logger.Logger
	client GigaChatClient

	promptCap int
}

func NewQuestionGenService(log *logger.Logger, client GigaChatClient) QuestionGenService {
	slog := log.With("service", "QuestionGenService")
	return &questionGenService{
		log:       slog,
		client:    client,
		promptCap: utils.GetEnvAsInt("QUESTIONGEN_PROMPT_CAP", 4000, slog),
	}
}

// QuestionCountFor maps extracted-text length to a desired question count.
// Tiers are per material, so total quiz size grows with material count.
func QuestionCountFor(textLength int) int {
	switch {
	case textLength < 500:
		return 2
	case textLength < 1000:
		return 2
	case textLength < 1500:
		return 3
	default:
		return 3
	}
}

const questionPromptTemplate = `На основе следующего текста создай %d вопросов с вариантами ответов для проверки знаний студентов.

Текст:
%s

Требования к вопросам:
1. Вопросы должны проверять понимание ключевых концепций из текста
2. Вопросы должны быть разного уровня сложности
3. Каждый вопрос должен иметь 4 варианта ответа (A, B, C, D)
4. Только один вариант должен быть правильным
5. Неправильные варианты должны быть правдоподобными, но неверными
6. Вопросы должны быть на русском языке

Формат ответа (JSON):
{
  "questions": [
    {
      "question_text": "Текст вопроса",
      "options": ["Вариант A", "Вариант B", "Вариант C", "Вариант D"],
      "correct_answer": "Вариант A",
      "correct_index": 0
    }
  ]
}

Верни ТОЛЬКО валидный JSON, без дополнительного текста.`

func (s *questionGenService) GenerateQuestions(ctx context.Context, text string) []QuestionDraft {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	numQuestions := QuestionCountFor(len([]rune(text)))

	excerpt := text
	if runes := []rune(excerpt); len(runes) > s.promptCap {
		excerpt = string(runes[:s.promptCap])
	}

	prompt := fmt.Sprintf(questionPromptTemplate, numQuestions, excerpt)

	response, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.log.Error("Question generation call failed", "error", err.Error())
		return nil
	}

	drafts, err := ParseQuestionResponse(response, numQuestions)
	if err != nil {
		s.log.Error("Question generation response unparseable", "error", err.Error())
		return nil
	}

	s.log.Info("Questions generated", "count", len(drafts))
	return drafts
}

type questionResponsePayload struct {
	Questions []struct {
		QuestionText  string   `json:"question_text"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
		CorrectIndex  int      `json:"correct_index"`
	} `json:"questions"`
}

// ParseQuestionResponse extracts the first top-level JSON object from a
// completion response and converts it into drafts. Models wrap JSON in prose
// or code fences often enough that scanning for braces beats strict decoding.
func ParseQuestionResponse(response string, maxQuestions int) ([]QuestionDraft, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var payload questionResponsePayload
	if err := json.Unmarshal([]byte(response[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode question JSON: %w", err)
	}

	var drafts []QuestionDraft
	for _, q := range payload.Questions {
		if len(drafts) >= maxQuestions {
			break
		}
		drafts = append(drafts, QuestionDraft{
			QuestionText:  q.QuestionText,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			QuestionType:  types.QuestionTypeMultipleChoice,
		})
	}
	return drafts, nil
}

package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

func TestQuestionCountFor(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{0, 2},
		{499, 2},
		{500, 2},
		{999, 2},
		{1000, 3},
		{1499, 3},
		{1500, 3},
		{20000, 3},
	}
	for _, tc := range cases {
		if got := QuestionCountFor(tc.length); got != tc.want {
			t.Errorf("QuestionCountFor(%d) = %d, want %d", tc.length, got, tc.want)
		}
	}
}

const sampleQuestionJSON = `{
  "questions": [
    {
      "question_text": "Что такое стек?",
      "options": ["Очередь", "Структура LIFO", "Дерево", "Граф"],
      "correct_answer": "Структура LIFO",
      "correct_index": 1
    },
    {
      "question_text": "Сложность поиска в хеш-таблице?",
      "options": ["O(1)", "O(n)", "O(log n)", "O(n^2)"],
      "correct_answer": "O(1)",
      "correct_index": 0
    }
  ]
}`

func TestParseQuestionResponsePlainJSON(t *testing.T) {
	drafts, err := ParseQuestionResponse(sampleQuestionJSON, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].QuestionText != "Что такое стек?" {
		t.Errorf("unexpected question text: %q", drafts[0].QuestionText)
	}
	if drafts[0].CorrectAnswer != "Структура LIFO" {
		t.Errorf("unexpected correct answer: %q", drafts[0].CorrectAnswer)
	}
	if drafts[0].QuestionType != types.QuestionTypeMultipleChoice {
		t.Errorf("unexpected question type: %q", drafts[0].QuestionType)
	}
	if len(drafts[1].Options) != 4 {
		t.Errorf("expected 4 options, got %d", len(drafts[1].Options))
	}
}

func TestParseQuestionResponseProseWrapped(t *testing.T) {
	response := "Вот сгенерированные вопросы:\n\n" + sampleQuestionJSON + "\n\nНадеюсь, это поможет!"
	drafts, err := ParseQuestionResponse(response, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
}

func TestParseQuestionResponseCodeFenced(t *testing.T) {
	response := "```json\n" + sampleQuestionJSON + "\n```"
	drafts, err := ParseQuestionResponse(response, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
}

func TestParseQuestionResponseCapsCount(t *testing.T) {
	drafts, err := ParseQuestionResponse(sampleQuestionJSON, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected drafts capped at 1, got %d", len(drafts))
	}
}

func TestParseQuestionResponseNoJSON(t *testing.T) {
	if _, err := ParseQuestionResponse("извините, не могу помочь", 5); err == nil {
		t.Fatal("expected error for response without JSON")
	}
}

func TestParseQuestionResponseMalformedJSON(t *testing.T) {
	if _, err := ParseQuestionResponse(`{"questions": [{"question_text": }`, 5); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func newQuestionGenForTest(client GigaChatClient) *questionGenService {
	return &questionGenService{
		log:       logger.NewNop(),
		client:    client,
		promptCap: 4000,
	}
}

func TestGenerateQuestionsRequestsTierCount(t *testing.T) {
	var gotPrompt string
	svc := newQuestionGenForTest(&fakeGigaChat{
		completeFn: func(prompt string) (string, error) {
			gotPrompt = prompt
			return sampleQuestionJSON, nil
		},
	})
	text := strings.Repeat("х", 2000)
	drafts := svc.GenerateQuestions(context.Background(), text)
	if len(drafts) != 2 {
		t.Fatalf("expected the 2 parseable drafts, got %d", len(drafts))
	}
	if !strings.Contains(gotPrompt, "создай 3 вопросов") {
		t.Errorf("prompt should request 3 questions for a 2000-char text")
	}
}

func TestGenerateQuestionsCapsPrompt(t *testing.T) {
	var gotPrompt string
	svc := newQuestionGenForTest(&fakeGigaChat{
		completeFn: func(prompt string) (string, error) {
			gotPrompt = prompt
			return sampleQuestionJSON, nil
		},
	})
	svc.GenerateQuestions(context.Background(), strings.Repeat("ф", 10000))
	// The excerpt is capped, so the prompt stays near template + cap size.
	if len([]rune(gotPrompt)) > 4000+len([]rune(questionPromptTemplate)) {
		t.Errorf("prompt not capped: %d runes", len([]rune(gotPrompt)))
	}
}

func TestGenerateQuestionsCallFailure(t *testing.T) {
	svc := newQuestionGenForTest(&fakeGigaChat{
		completeFn: func(string) (string, error) { return "", fmt.Errorf("upstream down") },
	})
	if drafts := svc.GenerateQuestions(context.Background(), "текст лекции"); drafts != nil {
		t.Fatalf("expected nil drafts on call failure, got %v", drafts)
	}
}

func TestGenerateQuestionsEmptyText(t *testing.T) {
	svc := newQuestionGenForTest(&fakeGigaChat{})
	if drafts := svc.GenerateQuestions(context.Background(), "  \n "); drafts != nil {
		t.Fatalf("expected nil drafts for empty text, got %v", drafts)
	}
}

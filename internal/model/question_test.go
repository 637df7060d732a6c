package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRedactStripsAnswerKeyFields(t *testing.T) {
	solution := "Paris is the capital of France."
	explanation := "Generated explanation."
	q := Question{
		ID:            uuid.New(),
		ExamID:        uuid.New(),
		QuestionText:  "What is the capital of France?",
		QuestionType:  QuestionTypeMultipleChoice,
		Options:       []string{"Paris", "Lyon", "Nice"},
		CorrectAnswer: "Paris",
		Solution:      &solution,
		Explanation:   &explanation,
		OrderIndex:    0,
	}

	raw, err := json.Marshal(q.Redact())
	if err != nil {
		t.Fatalf("marshal redacted question: %v", err)
	}

	payload := string(raw)
	for _, forbidden := range []string{"correct_answer", "solution", "explanation", "Paris is the capital"} {
		if strings.Contains(payload, forbidden) {
			t.Errorf("redacted payload contains %q: %s", forbidden, payload)
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal redacted payload: %v", err)
	}
	if decoded["question_text"] != q.QuestionText {
		t.Errorf("question_text lost in redaction: %v", decoded["question_text"])
	}
}

func TestRedactKeepsDisplayFields(t *testing.T) {
	img := "/uploads/abc.png"
	q := Question{
		ID:           uuid.New(),
		QuestionText: "True or false: the sky is green.",
		QuestionType: QuestionTypeTrueFalse,
		Options:      []string{"true", "false"},
		CorrectAnswer: "false",
		OrderIndex:   3,
		ImageURL:     &img,
	}

	r := q.Redact()
	if r.ID != q.ID || r.QuestionText != q.QuestionText || r.OrderIndex != 3 {
		t.Errorf("display fields not preserved: %+v", r)
	}
	if r.ImageURL == nil || *r.ImageURL != img {
		t.Errorf("image url not preserved: %v", r.ImageURL)
	}
	if len(r.Options) != 2 {
		t.Errorf("options not preserved: %v", r.Options)
	}
}

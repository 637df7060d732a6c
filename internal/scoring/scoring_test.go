package scoring

import "testing"

func TestScore(t *testing.T) {
	key := []AnswerKey{
		{QuestionID: "q1", CorrectAnswer: "A"},
		{QuestionID: "q2", CorrectAnswer: "B"},
		{QuestionID: "q3", CorrectAnswer: "C"},
		{QuestionID: "q4", CorrectAnswer: "D"},
	}

	tests := []struct {
		name    string
		key     []AnswerKey
		answers map[string]string
		score   int
		correct int
		total   int
	}{
		{
			name: "all correct",
			key:  key,
			answers: map[string]string{
				"q1": "A", "q2": "B", "q3": "C", "q4": "D",
			},
			score: 100, correct: 4, total: 4,
		},
		{
			name: "half correct",
			key:  key,
			answers: map[string]string{
				"q1": "A", "q2": "B", "q3": "X", "q4": "Y",
			},
			score: 50, correct: 2, total: 4,
		},
		{
			name:    "unanswered counts toward denominator as wrong",
			key:     key,
			answers: map[string]string{"q1": "A", "q2": "B"},
			score:   50, correct: 2, total: 4,
		},
		{
			name:    "unknown answer keys are ignored",
			key:     key,
			answers: map[string]string{"q1": "A", "bogus": "A", "q99": "B"},
			score:   25, correct: 1, total: 4,
		},
		{
			name:    "empty answers",
			key:     key,
			answers: map[string]string{},
			score:   0, correct: 0, total: 4,
		},
		{
			name:    "nil answers",
			key:     key,
			answers: nil,
			score:   0, correct: 0, total: 4,
		},
		{
			name:    "zero questions yields zero score",
			key:     nil,
			answers: map[string]string{"q1": "A"},
			score:   0, correct: 0, total: 0,
		},
		{
			name: "rounding one third",
			key: []AnswerKey{
				{QuestionID: "q1", CorrectAnswer: "A"},
				{QuestionID: "q2", CorrectAnswer: "B"},
				{QuestionID: "q3", CorrectAnswer: "C"},
			},
			answers: map[string]string{"q1": "A"},
			score:   33, correct: 1, total: 3,
		},
		{
			name: "rounding two thirds",
			key: []AnswerKey{
				{QuestionID: "q1", CorrectAnswer: "A"},
				{QuestionID: "q2", CorrectAnswer: "B"},
				{QuestionID: "q3", CorrectAnswer: "C"},
			},
			answers: map[string]string{"q1": "A", "q2": "B"},
			score:   67, correct: 2, total: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.key, tc.answers)
			if got.Score != tc.score || got.CorrectCount != tc.correct || got.TotalCount != tc.total {
				t.Errorf("Score() = %+v, want score=%d correct=%d total=%d",
					got, tc.score, tc.correct, tc.total)
			}
		})
	}
}

// Matching is exact: case differences and surrounding whitespace count
// as wrong answers.
func TestScoreExactMatch(t *testing.T) {
	key := []AnswerKey{{QuestionID: "q1", CorrectAnswer: "Paris"}}

	tests := []struct {
		answer string
		want   int
	}{
		{"Paris", 100},
		{"paris", 0},
		{"PARIS", 0},
		{" Paris", 0},
		{"Paris ", 0},
		{"", 0},
	}

	for _, tc := range tests {
		got := Score(key, map[string]string{"q1": tc.answer})
		if got.Score != tc.want {
			t.Errorf("Score(%q) = %d, want %d", tc.answer, got.Score, tc.want)
		}
	}
}

// The scorer is a pure function: equal inputs always produce equal outputs.
func TestScoreDeterminism(t *testing.T) {
	key := []AnswerKey{
		{QuestionID: "q1", CorrectAnswer: "A"},
		{QuestionID: "q2", CorrectAnswer: "B"},
	}
	answers := map[string]string{"q1": "A", "q2": "C"}

	first := Score(key, answers)
	for i := 0; i < 100; i++ {
		if got := Score(key, answers); got != first {
			t.Fatalf("iteration %d: Score() = %+v, want %+v", i, got, first)
		}
	}
	if first.Score != 50 || first.CorrectCount != 1 || first.TotalCount != 2 {
		t.Errorf("unexpected baseline result: %+v", first)
	}
}

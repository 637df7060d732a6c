// Package scoring implements the deterministic grading function used by
// the attempt submit transaction. It is side-effect free: no database,
// no clock, no randomness. The transactional wrapper lives in
// service.AttemptService; keeping the scorer pure keeps it unit-testable
// in isolation.
package scoring

import "math"

// AnswerKey pairs a question id with its expected answer. The full
// Question model is deliberately not used here — the scorer only ever
// needs the key, and a narrow input keeps the trusted surface small.
type AnswerKey struct {
	QuestionID    string
	CorrectAnswer string
}

// Result is the score triple returned to the candidate.
type Result struct {
	Score        int // round(correct/total*100); 0 when total is 0
	CorrectCount int
	TotalCount   int // always len(key), regardless of answers supplied
}

// Score grades a candidate's answer map against the exam's answer key.
//
// Comparison is exact string equality: case-sensitive, no trimming, no
// normalization. Whitespace or case differences count as wrong — this
// is intentional, inherited behavior. Unanswered questions count toward
// the denominator and as incorrect. Keys in answers that do not match
// any question are ignored.
func Score(key []AnswerKey, answers map[string]string) Result {
	correct := 0
	for _, k := range key {
		if submitted, ok := answers[k.QuestionID]; ok && submitted == k.CorrectAnswer {
			correct++
		}
	}

	total := len(key)
	score := 0
	if total > 0 {
		score = int(math.Round(float64(correct) / float64(total) * 100))
	}

	return Result{
		Score:        score,
		CorrectCount: correct,
		TotalCount:   total,
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

var (
	ErrGenerationDisabled = errors.New("question generation is not configured")
	ErrQuotaExceeded      = errors.New("daily generation quota exceeded")
	ErrEmptyGeneration    = errors.New("model returned no usable questions")
)

// GenerateQuestionsRequest describes what the author wants drafted.
type GenerateQuestionsRequest struct {
	Topic        string `json:"topic" binding:"required,min=3,max=500"`
	Count        int    `json:"count" binding:"required,min=1,max=20"`
	QuestionType string `json:"question_type" binding:"required,oneof=multiple_choice true_false short_answer"`
	Difficulty   string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Language     string `json:"language" binding:"omitempty,max=50"`
	// SourceText, when present, grounds the questions in imported
	// material instead of the model's own knowledge.
	SourceText string `json:"source_text" binding:"omitempty,max=50000"`
}

// GenerationService drafts questions with Gemini. Output is always a
// draft: nothing is persisted until the author saves the questions
// through the normal question endpoints, so the redaction and scoring
// paths never see unreviewed model output.
type GenerationService struct {
	client *genai.GenerativeModel
	rdb    *redis.Client
	cfg    *config.Config
	log    zerolog.Logger
}

// NewGenerationService creates a new GenerationService. A missing API
// key is not an error; the service stays up and reports
// ErrGenerationDisabled per call.
func NewGenerationService(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (*GenerationService, error) {
	s := &GenerationService{
		rdb: rdb,
		cfg: cfg,
		log: log.With().Str("component", "generation_service").Logger(),
	}

	if cfg.GeminiAPIKey == "" {
		s.log.Warn().Msg("GEMINI_API_KEY is not set, question generation disabled")
		return s, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	gm := client.GenerativeModel(cfg.GeminiModel)
	gm.ResponseMIMEType = "application/json"
	s.client = gm
	return s, nil
}

// Enabled reports whether a Gemini client is configured.
func (s *GenerationService) Enabled() bool {
	return s.client != nil
}

// Generate drafts questions for an author, charging their daily quota.
func (s *GenerationService) Generate(ctx context.Context, authorID int, req *GenerateQuestionsRequest) ([]model.QuestionInput, error) {
	if s.client == nil {
		return nil, ErrGenerationDisabled
	}

	if err := s.chargeQuota(ctx, authorID, req.Count); err != nil {
		return nil, err
	}

	prompt := buildGenerationPrompt(req)
	resp, err := s.client.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	raw := collectText(resp)
	if raw == "" {
		return nil, ErrEmptyGeneration
	}

	drafts, err := parseGeneratedQuestions(raw, req.QuestionType)
	if err != nil {
		s.log.Warn().Err(err).Str("raw", truncate(raw, 512)).Msg("Generated payload failed to parse")
		return nil, ErrEmptyGeneration
	}

	s.log.Info().Int("author_id", authorID).Int("count", len(drafts)).Msg("Questions drafted")
	return drafts, nil
}

// chargeQuota increments the author's daily counter and rejects the
// call when the configured limit is crossed. The counter key expires
// with the day.
func (s *GenerationService) chargeQuota(ctx context.Context, authorID, n int) error {
	if s.cfg.GenerationQuota <= 0 || s.rdb == nil {
		return nil
	}

	day := time.Now().UTC().Format("2006-01-02")
	key := config.CacheKey.GenerationQuotaKey(authorID, day)

	total, err := s.rdb.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return fmt.Errorf("charge quota: %w", err)
	}
	if total == int64(n) {
		s.rdb.Expire(ctx, key, 48*time.Hour)
	}
	if total > int64(s.cfg.GenerationQuota) {
		// Refund so a smaller request can still go through today.
		s.rdb.DecrBy(ctx, key, int64(n))
		return ErrQuotaExceeded
	}
	return nil
}

func buildGenerationPrompt(req *GenerateQuestionsRequest) string {
	var b strings.Builder

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	language := req.Language
	if language == "" {
		language = "English"
	}

	fmt.Fprintf(&b, `You are an exam author's assistant. Write %d %s exam questions about the topic below, at %s difficulty, in %s.

Topic: %s
`, req.Count, strings.ReplaceAll(req.QuestionType, "_", " "), difficulty, language, req.Topic)

	if req.SourceText != "" {
		fmt.Fprintf(&b, "\nBase every question strictly on this source material:\n---\n%s\n---\n", req.SourceText)
	}

	b.WriteString(`
Respond with a JSON array only. Each element must have exactly these fields:
  "question_text": the question as shown to the candidate
  "options": array of answer options (for multiple_choice: 4 options; for true_false: ["true","false"]; for short_answer: [])
  "correct_answer": the correct answer, matching one option exactly where options exist
  "explanation": one or two sentences explaining why the answer is correct

Do not wrap the array in any other object and do not add commentary.`)

	return b.String()
}

// collectText flattens the text parts of a Gemini response.
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}

type generatedQuestion struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// parseGeneratedQuestions converts model output into draft inputs,
// dropping elements that would not survive question validation.
func parseGeneratedQuestions(raw, questionType string) ([]model.QuestionInput, error) {
	// Models occasionally wrap JSON in a code fence despite the MIME
	// type hint.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var items []generatedQuestion
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("unmarshal generated questions: %w", err)
	}

	drafts := make([]model.QuestionInput, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.QuestionText) == "" || strings.TrimSpace(item.CorrectAnswer) == "" {
			continue
		}
		input := model.QuestionInput{
			QuestionText:  strings.TrimSpace(item.QuestionText),
			QuestionType:  questionType,
			CorrectAnswer: strings.TrimSpace(item.CorrectAnswer),
		}
		if exp := strings.TrimSpace(item.Explanation); exp != "" {
			input.Explanation = &exp
		}
		switch questionType {
		case string(model.QuestionTypeMultipleChoice):
			if len(item.Options) < 2 {
				continue
			}
			input.Options = item.Options
		case string(model.QuestionTypeTrueFalse):
			input.Options = []string{"true", "false"}
			answer := strings.ToLower(input.CorrectAnswer)
			if answer != "true" && answer != "false" {
				continue
			}
			input.CorrectAnswer = answer
		}
		drafts = append(drafts, input)
	}
	if len(drafts) == 0 {
		return nil, errors.New("no valid questions in generated payload")
	}
	return drafts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

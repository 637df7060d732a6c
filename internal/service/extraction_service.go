package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/ledongthuc/pdf"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

var ErrExtractionFailed = errors.New("could not extract text from document")

// MaxImportSize caps uploaded documents at 15 MiB, which is also the
// practical ceiling for inline Gemini uploads.
const MaxImportSize = 15 << 20

// minExtractedChars is the threshold below which a PDF is treated as
// scanned (no usable text layer) and handed to the vision fallback.
const minExtractedChars = 120

// ExtractionService turns uploaded study material into plain text that
// the generation service can draft questions from. Digital PDFs are
// read from their text layer; scanned PDFs fall back to Gemini OCR.
type ExtractionService struct {
	vision *genai.GenerativeModel
	cfg    *config.Config
	log    zerolog.Logger
}

// NewExtractionService creates a new ExtractionService. Without an API
// key the text-layer path still works; only scanned documents fail.
func NewExtractionService(cfg *config.Config, log zerolog.Logger) (*ExtractionService, error) {
	s := &ExtractionService{
		cfg: cfg,
		log: log.With().Str("component", "extraction_service").Logger(),
	}

	if cfg.GeminiAPIKey == "" {
		return s, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	s.vision = client.GenerativeModel(cfg.GeminiModel)
	return s, nil
}

// ExtractPDF returns the plain text of a PDF document.
func (s *ExtractionService) ExtractPDF(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 || len(data) > MaxImportSize {
		return "", fmt.Errorf("%w: document is empty or too large", ErrExtractionFailed)
	}

	text, err := extractTextLayer(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("PDF text layer unreadable")
	}
	if len(strings.TrimSpace(text)) >= minExtractedChars {
		return text, nil
	}

	// Thin or missing text layer: likely a scanned document.
	if s.vision == nil {
		return "", fmt.Errorf("%w: no text layer and OCR is not configured", ErrExtractionFailed)
	}

	s.log.Info().Int("bytes", len(data)).Msg("Falling back to OCR for scanned document")
	return s.ocr(ctx, data)
}

// extractTextLayer reads the embedded text of a digital PDF.
func extractTextLayer(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the document.
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (s *ExtractionService) ocr(ctx context.Context, data []byte) (string, error) {
	resp, err := s.vision.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: data},
		genai.Text("Transcribe all readable text from this document as plain text. Preserve the reading order. Output only the transcription, with no commentary."),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	text := collectText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document yielded no text", ErrExtractionFailed)
	}
	return text, nil
}

package reconcile

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/document"
	"github.com/clinrec/clinrec/pkg/errs"
)

// ExtractionResult is what the extraction collaborator returns for one
// import: the structured document it read out of the uploaded files plus an
// overall confidence score in [0,1].
type ExtractionResult struct {
	Document   document.Document `json:"document"`
	Confidence *float64          `json:"confidence,omitempty"`
}

// Extractor turns uploaded source files into a structured document. The real
// implementation is an external AI/OCR service; the engine only sees this
// interface.
type Extractor interface {
	Extract(ctx context.Context, files []SourceFile) (*ExtractionResult, error)
}

// HTTPExtractor calls the extraction service over HTTP.
type HTTPExtractor struct {
	client *resty.Client
	logger zerolog.Logger
}

func NewHTTPExtractor(baseURL string, logger zerolog.Logger) *HTTPExtractor {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Minute).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPExtractor{client: client, logger: logger}
}

type extractRequest struct {
	Files []SourceFile `json:"files"`
}

type extractResponse struct {
	Document   document.Document `json:"document"`
	Confidence *float64          `json:"confidence"`
	Error      string            `json:"error"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, files []SourceFile) (*ExtractionResult, error) {
	var out extractResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(extractRequest{Files: files}).
		SetResult(&out).
		SetError(&out).
		Post("/extract")
	if err != nil {
		return nil, errs.Wrap(errs.KindExtraction, "extraction service unreachable", err)
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		e.logger.Error().
			Int("status_code", resp.StatusCode()).
			Str("error", msg).
			Msg("extraction service rejected the request")
		return nil, errs.Newf(errs.KindExtraction, "extraction failed: %s", msg)
	}
	return &ExtractionResult{Document: out.Document, Confidence: out.Confidence}, nil
}

// Package gemini adapts Google's Gemini models to the remote backend
// contract, either through the Gemini Developer API (API key, Files API) or
// through Vertex AI with audio staged in object storage.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/tendant/simple-minutes/internal/remote"
)

const DefaultModel = "gemini-2.5-pro"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func generate(ctx context.Context, models contentGenerator, model, prompt string, audio *genai.Part) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt), audio}, genai.RoleUser),
	}
	resp, err := models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", classify("generate", err)
	}
	text := resp.Text()
	if text != "" {
		return text, nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &remote.Error{Kind: remote.KindInvalid, Op: "generate", Err: fmt.Errorf("request blocked: %s %s", fb.BlockReason, fb.BlockReasonMessage)}
	}
	return "", &remote.Error{Kind: remote.KindProcessing, Op: "generate", Err: errors.New("model returned no text")}
}

// classify maps SDK errors onto remote kinds by HTTP status, falling back to
// network inspection for errors that never reached the service.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &remote.Error{Kind: remote.KindForStatus(apiErr.Code), Op: op, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &remote.Error{Kind: remote.KindForStatus(apiErrPtr.Code), Op: op, Err: err}
	}
	return remote.Wrap(op, err)
}

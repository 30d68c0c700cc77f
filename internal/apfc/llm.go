package apfc

import (
	"context"
	"fmt"

	"github.com/nerdstack/apfc/internal/logging"

	"google.golang.org/genai"
)

// LLMClient is APFC's Tier-3 "LLM provider" collaborator (§6). Every call
// accepts an optional previous response id for response chaining and
// returns the id the provider assigned to the new response (empty if the
// provider does not support chaining).
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, previousResponseID string) (text string, responseID string, err error)
}

// GenAIClient implements LLMClient against Google's Gemini API. It uses no
// provider-side continuation id: Complete returns the response text itself
// as the responseID, and a later call that passes it as previousResponseID
// sends that text back as prior context.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient builds a Gemini-backed LLMClient.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, newErr(ErrKindConfiguration, "NewGenAIClient", fmt.Errorf("LLM_API_KEY is required"))
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, newErr(ErrKindExternalCall, "NewGenAIClient", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends a system+user prompt pair to Gemini. previousResponseID, if
// non-empty, is prepended as prior conversational context so the model sees
// the continuation the Worker is repairing; this is APFC's portable stand-in
// for a provider-native response-chain token, which the public Gemini Go SDK
// does not yet surface as an opaque correlation id the way an OpenAI
// Responses-style API would.
func (c *GenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt, previousResponseID string) (string, string, error) {
	log := logging.APFCLog(logging.CategoryWorker)
	parts := []*genai.Part{}
	if previousResponseID != "" {
		parts = append(parts, genai.NewPartFromText("Prior context:\n"+previousResponseID))
	}
	parts = append(parts, genai.NewPartFromText(userPrompt))

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		log.Errorw("gemini generate failed", "error", err)
		return "", "", newErr(ErrKindExternalCall, "GenAIClient.Complete", err)
	}
	text := resp.Text()
	// The returned responseID becomes next call's previousResponseID; since
	// the SDK has no opaque handle, we chain on the text itself (bounded by
	// the Worker, which only ever threads the last dependency's or the
	// atom's own prior response through a single hop).
	return text, text, nil
}

// NullLLMClient is a deterministic stub usable in tests and in environments
// without credentials (§7 "configuration error" path callers can choose to
// substitute instead of failing outright, when exercising the rest of the
// pipeline offline is useful).
type NullLLMClient struct {
	Responses map[string]string // keyed by userPrompt, for scripted tests
	Err       error
}

func (n *NullLLMClient) Complete(_ context.Context, _ string, userPrompt string, _ string) (string, string, error) {
	if n.Err != nil {
		return "", "", n.Err
	}
	if r, ok := n.Responses[userPrompt]; ok {
		return r, "resp-" + userPrompt, nil
	}
	return "", "", fmt.Errorf("NullLLMClient: no scripted response for prompt")
}

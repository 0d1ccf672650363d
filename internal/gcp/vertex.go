package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/catstoryflow/internal/narrator"
)

// DefaultVertexModel is used when the narrator config names no model.
const DefaultVertexModel = "gemini-1.5-pro"

// VertexClient is a narrator.ChatClient backed by Gemini on Vertex AI.
type VertexClient struct {
	baseClient *genai.Client
	projectID  string
	region     string
}

func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{baseClient: baseClient, projectID: projectID, region: region}, nil
}

func (c *VertexClient) Name() string { return "vertex" }

func (c *VertexClient) Configured() error {
	if c.baseClient == nil {
		return errors.New("vertex client is not initialized")
	}
	return nil
}

// Complete builds a model per request so each call carries its own system
// instruction and sampling. Frequency and presence penalties are not sent.
func (c *VertexClient) Complete(ctx context.Context, req narrator.Request) (string, error) {
	name := req.Model
	if !strings.HasPrefix(name, "gemini") {
		name = DefaultVertexModel
	}
	model := c.baseClient.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}
	model.SetTemperature(float32(req.Temperature))
	model.SetTopP(float32(req.TopP))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", fmt.Errorf("vertex generate content with %s: %w", name, err)
	}
	return responseText(resp)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// responseText joins the text parts of the first candidate and strips a
// surrounding code fence if the model added one.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(sb.String())
	out = strings.TrimPrefix(out, "```markdown")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-voicechat-be/pkg/llm"
)

const baseURL = "https://generativelanguage.googleapis.com/v1/models"

type GeminiProvider struct {
	ApiKey    string
	ModelName string
	Client    *http.Client
}

var _ llm.LLMProvider = &GeminiProvider{}

func NewGeminiProvider(apiKey, modelName string) *GeminiProvider {
	return &GeminiProvider{
		ApiKey:    apiKey,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []*geminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []*geminiContent        `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCitationSource struct {
	Uri string `json:"uri"`
}

type geminiCitationMetadata struct {
	CitationSources []*geminiCitationSource `json:"citationSources"`
}

type geminiCandidate struct {
	Content          *geminiContent          `json:"content"`
	CitationMetadata *geminiCitationMetadata `json:"citationMetadata"`
}

type geminiResponse struct {
	Candidates []*geminiCandidate `json:"candidates"`
}

// --- Interface Implementation ---

func (g *GeminiProvider) buildRequest(history []llm.Message, options *llm.Options) *geminiRequest {
	contents := make([]*geminiContent, 0, len(history))
	for _, msg := range history {
		// Gemini uses "model" where the rest of the app says "assistant"
		role := msg.Role
		if role == "assistant" || role == "system" {
			role = "model"
		}
		contents = append(contents, &geminiContent{
			Parts: []*geminiPart{{Text: msg.Content}},
			Role:  role,
		})
	}

	req := &geminiRequest{Contents: contents}
	if options.Temperature > 0 || options.MaxTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxTokens,
		}
	}
	return req
}

func (g *GeminiProvider) model(options *llm.Options) string {
	if options.Model != "" {
		return options.Model
	}
	return g.ModelName
}

func (g *GeminiProvider) post(ctx context.Context, url string, payload *geminiRequest) (*http.Response, error) {
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return res, nil
}

func candidateResult(res *geminiResponse) (*llm.Result, error) {
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	cand := res.Candidates[0]

	result := &llm.Result{Text: cand.Content.Parts[0].Text}
	if cand.CitationMetadata != nil {
		for _, src := range cand.CitationMetadata.CitationSources {
			result.Sources = append(result.Sources, llm.Source{Title: src.Uri, Url: src.Uri})
		}
	}
	return result, nil
}

func (g *GeminiProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (*llm.Result, error) {
	options := &llm.Options{}
	for _, opt := range opts {
		opt(options)
	}

	url := fmt.Sprintf("%s/%s:generateContent", baseURL, g.model(options))
	res, err := g.post(ctx, url, g.buildRequest(history, options))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var geminiRes geminiResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return candidateResult(&geminiRes)
}

// ChatStream calls streamGenerateContent, which answers with a JSON array of
// responses written incrementally. Each array element becomes one chunk.
func (g *GeminiProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	options := &llm.Options{}
	for _, opt := range opts {
		opt(options)
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent", baseURL, g.model(options))
	res, err := g.post(ctx, url, g.buildRequest(history, options))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("status error, got status %d. with response body %s", res.StatusCode, string(body))
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer res.Body.Close()

		dec := json.NewDecoder(res.Body)
		// Opening bracket of the response array
		if _, err := dec.Token(); err != nil {
			out <- llm.Chunk{Err: fmt.Errorf("read stream opening: %w", err)}
			return
		}
		for dec.More() {
			var part geminiResponse
			if err := dec.Decode(&part); err != nil {
				out <- llm.Chunk{Err: fmt.Errorf("decode stream element: %w", err)}
				return
			}
			result, err := candidateResult(&part)
			if err != nil {
				continue // empty interstitial element
			}
			select {
			case out <- llm.Chunk{Text: result.Text, Sources: result.Sources}:
			case <-ctx.Done():
				out <- llm.Chunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	result, err := g.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const transcribeInstruction = `Transcribe the audio exactly as spoken.
Respond with ONLY this JSON format: {"text": "...", "confidence": 0.0, "language": "xx"}. No other text.
"confidence" is your own 0.0-1.0 estimate of transcription accuracy.`

// GeminiProvider transcribes audio through the Gemini generateContent API
// with an inline audio part.
type GeminiProvider struct {
	ApiKey    string
	ModelName string
	Client    *http.Client
}

var _ Provider = &GeminiProvider{}

func NewGeminiProvider(apiKey, modelName string) *GeminiProvider {
	return &GeminiProvider{
		ApiKey:    apiKey,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []*geminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []*geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []*geminiCandidate `json:"candidates"`
}

func mimeTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return "audio/wav"
	case "mp3":
		return "audio/mp3"
	case "ogg", "opus":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "flac":
		return "audio/flac"
	default:
		return "audio/" + strings.ToLower(format)
	}
}

func (g *GeminiProvider) Transcribe(ctx context.Context, audio []byte, format string, sampleRate int, language string) (*Transcript, error) {
	instruction := transcribeInstruction
	if language != "" {
		instruction = fmt.Sprintf("The audio language is %q.\n%s", language, instruction)
	}

	payload := geminiRequest{
		Contents: []*geminiContent{
			{
				Parts: []*geminiPart{
					{InlineData: &geminiInlineData{
						MimeType: mimeTypeFor(format),
						Data:     base64.StdEncoding.EncodeToString(audio),
					}},
					{Text: instruction},
				},
				Role: "user",
			},
		},
	}

	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1/models/%s:generateContent",
		g.ModelName,
	)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt request failed: %w", err)
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
	if len(geminiRes.Candidates) == 0 || geminiRes.Candidates[0].Content == nil || len(geminiRes.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("stt returned no candidates")
	}

	raw := strings.TrimSpace(geminiRes.Candidates[0].Content.Parts[0].Text)
	// Models occasionally wrap the JSON in a code fence despite the prompt
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Language   string  `json:"language"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal transcript payload: %w", err)
	}

	if parsed.Language == "" {
		parsed.Language = language
	}
	return &Transcript{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		Language:   parsed.Language,
	}, nil
}

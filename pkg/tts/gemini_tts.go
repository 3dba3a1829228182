package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiProvider synthesizes speech through the Gemini TTS models
// (responseModalities: AUDIO). Output is 24kHz 16-bit PCM.
type GeminiProvider struct {
	ApiKey       string
	ModelName    string
	DefaultVoice string
	Client       *http.Client
}

var _ Provider = &GeminiProvider{}

func NewGeminiProvider(apiKey, modelName, defaultVoice string) *GeminiProvider {
	return &GeminiProvider{
		ApiKey:       apiKey,
		ModelName:    modelName,
		DefaultVoice: defaultVoice,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ttsPart struct {
	Text string `json:"text"`
}

type ttsContent struct {
	Parts []*ttsPart `json:"parts"`
}

type ttsVoiceConfig struct {
	PrebuiltVoiceConfig struct {
		VoiceName string `json:"voiceName"`
	} `json:"prebuiltVoiceConfig"`
}

type ttsSpeechConfig struct {
	VoiceConfig ttsVoiceConfig `json:"voiceConfig"`
}

type ttsGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	SpeechConfig       ttsSpeechConfig `json:"speechConfig"`
}

type ttsRequest struct {
	Contents         []*ttsContent       `json:"contents"`
	GenerationConfig ttsGenerationConfig `json:"generationConfig"`
}

type ttsInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type ttsResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *ttsInlineData `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiProvider) Synthesize(ctx context.Context, text, voiceId, language string) (*Audio, error) {
	voice := voiceId
	if voice == "" {
		voice = g.DefaultVoice
	}

	payload := ttsRequest{
		Contents: []*ttsContent{{Parts: []*ttsPart{{Text: text}}}},
	}
	payload.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	payload.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice

	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
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
		return nil, fmt.Errorf("tts request failed: %w", err)
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

	var geminiRes ttsResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(geminiRes.Candidates) == 0 || len(geminiRes.Candidates[0].Content.Parts) == 0 ||
		geminiRes.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, fmt.Errorf("tts returned no audio")
	}

	data, err := base64.StdEncoding.DecodeString(geminiRes.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}

	return &Audio{
		Data:       data,
		Format:     "pcm",
		SampleRate: 24000,
		VoiceId:    voice,
	}, nil
}

package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Gemini defaults. The model is fixed; the caller's model id only decides
// that Gemini is the target.
const (
	GeminiModel       = "gemini-2.0-flash"
	geminiTemperature = 0.7
	geminiMaxTokens   = 1024
	geminiFallback    = "No response from Gemini."
)

// ---------------------------------------------------------------------------
// GeminiAdapter struct + constructor
// ---------------------------------------------------------------------------

// GeminiAdapter targets Google's generateContent endpoint. The API key
// travels as a query parameter, not a header.
type GeminiAdapter struct {
	apiKey  string
	baseURL string // e.g. "https://generativelanguage.googleapis.com"
}

// NewGeminiAdapter creates a GeminiAdapter.
//
// baseURL is everything before "/v1beta" and must not end in a slash;
// config trims it. Tests point it at an httptest server so the same
// adapter code runs against a fake upstream.
func NewGeminiAdapter(apiKey, baseURL string) *GeminiAdapter {
	return &GeminiAdapter{apiKey: apiKey, baseURL: baseURL}
}

// Kind implements Adapter.
func (g *GeminiAdapter) Kind() Kind { return KindGemini }

// ---------------------------------------------------------------------------
// Gemini API types (unexported, only this file uses them)
// ---------------------------------------------------------------------------

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// NewRequest implements Adapter.
func (g *GeminiAdapter) NewRequest(_, instruction, userText string) Request {
	return Request{
		Model:             GeminiModel,
		SystemInstruction: instruction,
		UserText:          userText,
		Temperature:       geminiTemperature,
		MaxTokens:         geminiMaxTokens,
	}
}

// Build implements Adapter. Gemini gets no separate system role here:
// instruction and question are concatenated into the single text part.
func (g *GeminiAdapter) Build(req Request) (*CallSpec, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{
				Text: req.SystemInstruction + "\n\nUser Question: " + req.UserText,
			}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, req.Model, url.QueryEscape(g.apiKey),
	)

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	return newCallSpec(g, endpoint, headers, body, req)
}

// ---------------------------------------------------------------------------
// Response translation
// ---------------------------------------------------------------------------

// ExtractText implements Adapter: candidates[0].content.parts[0].text.
//
// The body is decoded into a pointer so a literal JSON null (which
// json.Unmarshal accepts without complaint) leaves it nil. That is treated
// as a malformed reply, not as an empty completion: only a real object with
// a missing text path earns the fallback string.
func (g *GeminiAdapter) ExtractText(body []byte) (string, error) {
	var resp *geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("decoding gemini response: %w", errNullBody)
	}

	if len(resp.Candidates) == 0 {
		return geminiFallback, nil
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0].Text == "" {
		return geminiFallback, nil
	}
	return content.Parts[0].Text, nil
}

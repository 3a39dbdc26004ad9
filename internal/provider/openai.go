package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenRouter, DeepSeek and Groq all speak the OpenAI chat-completions
// dialect. They share the wire types below and differ in endpoint, model
// override, sampling defaults and extra headers.

const openAIFallback = "No response generated."

// Fixed model names for providers that ignore the caller's model id.
const (
	DeepSeekModel = "deepseek-chat"
	GroqModel     = "llama-3.3-70b-versatile"
)

// ---------------------------------------------------------------------------
// OpenAI-compatible wire types
// ---------------------------------------------------------------------------

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message *chatMessage `json:"message"`
}

// ---------------------------------------------------------------------------
// OpenAICompatAdapter
// ---------------------------------------------------------------------------

// OpenAICompatAdapter implements Adapter for OpenAI-style providers.
type OpenAICompatAdapter struct {
	kind        Kind
	apiKey      string
	endpoint    string      // full chat-completions URL
	model       string      // empty means pass the caller's model id through
	temperature float64
	maxTokens   int
	extra       http.Header // provider-specific headers
}

// NewOpenRouterAdapter passes the caller's model id through verbatim and
// identifies the app with HTTP-Referer and X-Title headers.
//
// OpenRouter is a marketplace in front of many model vendors, so the model
// id the UI sends (e.g. "nex-agi/deepseek-v3.1-nex-n1:free") is exactly
// what OpenRouter expects. The two headers are optional on OpenRouter's
// side; an empty referer or title simply leaves that header out.
func NewOpenRouterAdapter(apiKey, baseURL, referer, title string) *OpenAICompatAdapter {
	extra := http.Header{}
	if referer != "" {
		extra.Set("HTTP-Referer", referer)
	}
	if title != "" {
		extra.Set("X-Title", title)
	}
	return &OpenAICompatAdapter{
		kind:        KindOpenRouter,
		apiKey:      apiKey,
		endpoint:    baseURL + "/api/v1/chat/completions",
		temperature: 0.7,
		extra:       extra,
	}
}

// NewDeepSeekAdapter always requests deepseek-chat at DeepSeek's
// recommended temperature of 1.3.
//
// Whatever model id selected this adapter ("deepseek-coder", "deepseek-r1",
// ...) is only used for routing; the request body always names
// DeepSeekModel. Note the endpoint has no "/v1" prefix.
func NewDeepSeekAdapter(apiKey, baseURL string) *OpenAICompatAdapter {
	return &OpenAICompatAdapter{
		kind:        KindDeepSeek,
		apiKey:      apiKey,
		endpoint:    baseURL + "/chat/completions",
		model:       DeepSeekModel,
		temperature: 1.3,
	}
}

// NewGroqAdapter always requests the Llama 3.3 70B model with a 1024
// token cap. It is the fallback for unrecognized model ids.
//
// Because Groq is the last rule in the Selector, any model id that matches
// nothing else ends up here, and like DeepSeek the caller's id is
// replaced by GroqModel in the request body.
func NewGroqAdapter(apiKey, baseURL string) *OpenAICompatAdapter {
	return &OpenAICompatAdapter{
		kind:        KindGroq,
		apiKey:      apiKey,
		endpoint:    baseURL + "/openai/v1/chat/completions",
		model:       GroqModel,
		temperature: 0.7,
		maxTokens:   1024,
	}
}

// Kind implements Adapter.
func (o *OpenAICompatAdapter) Kind() Kind { return o.kind }

// NewRequest implements Adapter.
func (o *OpenAICompatAdapter) NewRequest(modelID, instruction, userText string) Request {
	model := o.model
	if model == "" {
		model = modelID
	}
	return Request{
		Model:             model,
		SystemInstruction: instruction,
		UserText:          userText,
		Temperature:       o.temperature,
		MaxTokens:         o.maxTokens,
	}
}

// Build implements Adapter.
func (o *OpenAICompatAdapter) Build(req Request) (*CallSpec, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemInstruction},
			{Role: "user", Content: req.UserText},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", o.kind, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+o.apiKey)
	for name, values := range o.extra {
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	return newCallSpec(o, o.endpoint, headers, body, req)
}

// ExtractText implements Adapter: choices[0].message.content. As with
// Gemini, a JSON null body is a parse error rather than an empty reply.
func (o *OpenAICompatAdapter) ExtractText(body []byte) (string, error) {
	var resp *chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", o.kind, err)
	}
	if resp == nil {
		return "", fmt.Errorf("decoding %s response: %w", o.kind, errNullBody)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == "" {
		return openAIFallback, nil
	}
	return resp.Choices[0].Message.Content, nil
}

package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiBuildWireShape(t *testing.T) {
	g := NewGeminiAdapter("k", "https://example.test")
	call, err := g.Build(g.NewRequest("gemini-x", "Be brief.", "What is Go?"))
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/v1beta/models/gemini-2.0-flash:generateContent?key=k", call.URL)
	assert.Empty(t, call.Headers.Get("Authorization"), "gemini authenticates with the query parameter")

	assert.JSONEq(t, `{
		"contents": [{"parts": [{"text": "Be brief.\n\nUser Question: What is Go?"}]}],
		"generationConfig": {"temperature": 0.7, "maxOutputTokens": 1024}
	}`, string(call.Body))
}

func TestOpenAICompatBuildWireShape(t *testing.T) {
	t.Run("openrouter", func(t *testing.T) {
		a := NewOpenRouterAdapter("k", "https://or.test", "http://localhost:8000", "Dinzin AI Local")
		call, err := a.Build(a.NewRequest("vendor/model:free", "Sys.", "Hi"))
		require.NoError(t, err)

		assert.Equal(t, "https://or.test/api/v1/chat/completions", call.URL)
		assert.Equal(t, "http://localhost:8000", call.Headers.Get("HTTP-Referer"))
		assert.Equal(t, "Dinzin AI Local", call.Headers.Get("X-Title"))
		assert.JSONEq(t, `{
			"model": "vendor/model:free",
			"messages": [{"role":"system","content":"Sys."},{"role":"user","content":"Hi"}],
			"temperature": 0.7
		}`, string(call.Body))
	})

	t.Run("deepseek", func(t *testing.T) {
		a := NewDeepSeekAdapter("k", "https://ds.test")
		call, err := a.Build(a.NewRequest("deepseek-anything", "Sys.", "Hi"))
		require.NoError(t, err)

		assert.Empty(t, call.Headers.Get("X-Title"))
		assert.JSONEq(t, `{
			"model": "deepseek-chat",
			"messages": [{"role":"system","content":"Sys."},{"role":"user","content":"Hi"}],
			"temperature": 1.3
		}`, string(call.Body))
	})

	t.Run("groq", func(t *testing.T) {
		a := NewGroqAdapter("k", "https://groq.test")
		call, err := a.Build(a.NewRequest("unknown", "Sys.", "Hi"))
		require.NoError(t, err)

		assert.JSONEq(t, `{
			"model": "llama-3.3-70b-versatile",
			"messages": [{"role":"system","content":"Sys."},{"role":"user","content":"Hi"}],
			"temperature": 0.7,
			"max_tokens": 1024
		}`, string(call.Body))
	})
}

func TestGeminiExtractText(t *testing.T) {
	g := NewGeminiAdapter("k", "https://example.test")

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"text", `{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}`, "Hello", false},
		{"no candidates", `{"candidates":[]}`, geminiFallback, false},
		{"empty object", `{}`, geminiFallback, false},
		{"no content", `{"candidates":[{"finishReason":"SAFETY"}]}`, geminiFallback, false},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`, geminiFallback, false},
		{"empty text", `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`, geminiFallback, false},
		{"not json", `<html>oops</html>`, "", true},
		{"wrong shape", `{"candidates":"nope"}`, "", true},
		{"null body", `null`, "", true},
		{"null body with whitespace", " null\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.ExtractText([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAICompatExtractText(t *testing.T) {
	a := NewGroqAdapter("k", "https://groq.test")

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"text", `{"choices":[{"message":{"role":"assistant","content":"Hi!"}}]}`, "Hi!", false},
		{"no choices", `{"choices":[]}`, openAIFallback, false},
		{"null content", `{"choices":[{"message":{"role":"assistant","content":null}}]}`, openAIFallback, false},
		{"no message", `{"choices":[{"index":0}]}`, openAIFallback, false},
		{"empty object", `{}`, openAIFallback, false},
		{"truncated", `{"choices":[`, "", true},
		{"null body", `null`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ExtractText([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

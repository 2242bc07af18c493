package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callscope/internal/services/llm"
)

func TestLangChainOpenAICompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "demo-model",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": `{"ok":true}`},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer server.Close()

	completer, err := llm.NewLangChain(llm.Settings{Provider: "openai", APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err != nil {
		t.Fatalf("NewLangChain: %v", err)
	}
	content, err := completer.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil || !parsed.OK {
		t.Fatalf("unexpected content %q: %v", content, err)
	}
}

func TestNewLangChainRejectsUnknownProvider(t *testing.T) {
	if _, err := llm.NewLangChain(llm.Settings{Provider: "carrier-pigeon", Model: "m"}); err == nil {
		t.Fatal("expected error")
	}
}

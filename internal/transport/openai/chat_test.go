package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/domain"
)

func chatServer(t *testing.T, content string, check func(req map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func TestChatCaller_Complete(t *testing.T) {
	server := chatServer(t, ` {"sex":"ALL"} `, func(req map[string]any) {
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 3 {
			t.Errorf("messages = %d, want 3", len(msgs))
		}
		rf, _ := req["response_format"].(map[string]any)
		if rf["type"] != "json_object" {
			t.Errorf("response_format = %v", req["response_format"])
		}
	})
	defer server.Close()

	c := NewChatCaller(&Config{APIKey: "k", BaseURL: server.URL, Model: "gpt-4o-mini", MaxTokens: 512, Logger: zap.NewNop()})
	out, err := c.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "extract"},
		{Role: domain.RoleUser, Content: "criteria"},
		{Role: domain.RoleAssistant, Content: "{}"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"sex":"ALL"}` {
		t.Errorf("out = %q", out)
	}
	if c.Model() != "gpt-4o-mini" {
		t.Errorf("model = %q", c.Model())
	}
}

func TestChatCaller_EmptyContent(t *testing.T) {
	server := chatServer(t, "  ", nil)
	defer server.Close()

	c := NewChatCaller(&Config{APIKey: "k", BaseURL: server.URL, Model: "m", Logger: zap.NewNop()})
	_, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}})
	if !errors.Is(err, domain.ErrExtractionProviderError) {
		t.Fatalf("err = %v, want ErrExtractionProviderError", err)
	}
}

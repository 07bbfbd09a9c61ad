package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/MrWong99/harken/pkg/provider/llm"
	"github.com/MrWong99/harken/pkg/types"
)

// TestConvertMessage_Roles checks that every supported role converts.
func TestConvertMessage_Roles(t *testing.T) {
	tests := []struct {
		role  string
		check func(t *testing.T, m types.Message)
	}{
		{"system", func(t *testing.T, m types.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfSystem == nil {
				t.Fatalf("expected OfSystem, err=%v", err)
			}
		}},
		{"user", func(t *testing.T, m types.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfUser == nil {
				t.Fatalf("expected OfUser, err=%v", err)
			}
		}},
		{"assistant", func(t *testing.T, m types.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfAssistant == nil {
				t.Fatalf("expected OfAssistant, err=%v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			tt.check(t, types.Message{Role: tt.role, Content: "hi"})
		})
	}
}

// TestConvertMessage_UnknownRole ensures an error is returned for unknown roles.
func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "tool", Content: "x"})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "gpt-3.5-turbo")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// chatServer answers /chat/completions with content and records the decoded
// request body.
func chatServer(t *testing.T, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			http.Error(w, "bad auth "+auth, http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(body, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-3.5-turbo-0125",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_SendsPromptAndSampling(t *testing.T) {
	var body map[string]any
	srv := chatServer(t, "  Paris \n", &body)

	p, err := New("sk-test", "gpt-3.5-turbo",
		WithBaseURL(srv.URL+"/"),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.UserPrompt("Q: what is the capital of france?\nA:", 0.7, 300))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Paris" {
		t.Errorf("Content = %q, want Paris", resp.Content)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}

	if body["model"] != "gpt-3.5-turbo" {
		t.Errorf("model = %v", body["model"])
	}
	if body["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", body["temperature"])
	}
	if body["max_completion_tokens"] != float64(300) {
		t.Errorf("max_completion_tokens = %v, want 300", body["max_completion_tokens"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want one user turn", body["messages"])
	}
	m := msgs[0].(map[string]any)
	if m["role"] != "user" || m["content"] != "Q: what is the capital of france?\nA:" {
		t.Errorf("message = %v", m)
	}
}

func TestComplete_EmptyReply(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	p, _ := New("sk-test", "gpt-3.5-turbo", WithBaseURL(srv.URL+"/"), WithRequestOptions(option.WithMaxRetries(0)))

	_, err := p.Complete(context.Background(), llm.UserPrompt("Q: hi?\nA:", 0.7, 300))
	if !errors.Is(err, llm.ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-3.5-turbo", WithBaseURL(srv.URL+"/"), WithRequestOptions(option.WithMaxRetries(0)))
	if _, err := p.Complete(context.Background(), llm.UserPrompt("Q: hi?\nA:", 0.7, 300)); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, _ := New("sk-test", "gpt-3.5-turbo")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

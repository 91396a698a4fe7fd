package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harrisonrobin/jarvis/pkg/conversation"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sentRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
	System      []textBlock `json:"system"`
	Messages    []struct {
		Role    string      `json:"role"`
		Content []textBlock `json:"content"`
	} `json:"messages"`
}

func TestComplete(t *testing.T) {
	var got sentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header is missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"J'ai créé une tâche "},{"type":"text","text":"pour acheter du lait."}],"stop_reason":"end_turn"}`))
	})

	turns := []conversation.Turn{
		{Role: conversation.RoleAssistant, Content: "orphan"},
		{Role: conversation.RoleUser, Content: "Ajoute acheter du lait"},
	}
	text, err := c.Complete(context.Background(), "directive", turns)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "J'ai créé une tâche pour acheter du lait." {
		t.Errorf("text = %q", text)
	}

	if got.Model != DefaultModel {
		t.Errorf("model = %q, want %s", got.Model, DefaultModel)
	}
	if got.MaxTokens != DefaultMaxTokens || got.Temperature != DefaultTemperature {
		t.Errorf("max_tokens/temperature = %d/%v", got.MaxTokens, got.Temperature)
	}
	if len(got.System) != 1 || got.System[0].Text != "directive" {
		t.Errorf("system = %+v, want directive", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want the single user turn", got.Messages)
	}
	if content := got.Messages[0].Content; len(content) != 1 || content[0].Text != "Ajoute acheter du lait" {
		t.Errorf("content = %+v", content)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"http status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"type":"error","error":{"type":"overloaded_error"}}`, 529)
		}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
		}},
		{"no text", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"content":[],"stop_reason":"max_tokens"}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.h)
			_, err := c.Complete(context.Background(), "", []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}})
			if !errors.Is(err, model.ErrExternalService) {
				t.Errorf("err = %v, want ErrExternalService", err)
			}
		})
	}
}

func TestNewClientBaseURL(t *testing.T) {
	for _, in := range []string{"", "https://api.anthropic.com", "https://api.anthropic.com/v1", "https://api.anthropic.com/v1/"} {
		c, err := NewClient(Config{APIKey: "k", BaseURL: in})
		if err != nil {
			t.Fatalf("NewClient(%q): %v", in, err)
		}
		if c.cfg.BaseURL != DefaultBaseURL {
			t.Errorf("BaseURL(%q) = %q, want %s", in, c.cfg.BaseURL, DefaultBaseURL)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskhive/internal/apperr"
)

func newTestVendor(t *testing.T, handler http.HandlerFunc) *HTTPVendor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := NewHTTPVendor(srv.URL, "test-key", 5*time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("new vendor: %v", err)
	}
	return v
}

func TestChatParsesStructuredResponse(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Write([]byte(`{"message":"hi","suggestions":[{"kind":"create_task","description":"make a task","confidence":0.9}]}`))
	})

	out, err := v.Chat(context.Background(), ChatInput{Message: "hello"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out.Message != "hi" || len(out.Suggestions) != 1 || out.Suggestions[0].Kind != ActionCreateTask {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestChatVendorErrorMapsTo503(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := v.Chat(context.Background(), ChatInput{Message: "hello"})
	if !apperr.IsCode(err, apperr.CodeAIServiceUnavailable) {
		t.Fatalf("expected AI_SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestChatMalformedResponseMapsTo503(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := v.Chat(context.Background(), ChatInput{Message: "hello"})
	if !apperr.IsCode(err, apperr.CodeAIServiceUnavailable) {
		t.Fatalf("expected AI_SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestChatStreamCollectsDeltasAndFinal(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"delta\":\"hel\"}\n\n"))
		w.Write([]byte("data: {\"delta\":\"lo\"}\n\n"))
		w.Write([]byte("data: {\"final\":{\"message\":\"hello\",\"suggestions\":[]}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})

	var got strings.Builder
	out, err := v.ChatStream(context.Background(), ChatInput{Message: "hi"}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	if got.String() != "hello" {
		t.Fatalf("deltas = %q, want hello", got.String())
	}
	if out.Message != "hello" {
		t.Fatalf("final message = %q", out.Message)
	}
}

func TestChatStreamWithoutFinalFallsBackToTranscript(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"delta\":\"partial answer\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})

	out, err := v.ChatStream(context.Background(), ChatInput{Message: "hi"}, nil)
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	if out.Message != "partial answer" {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestGenerateSubtasksTruncatesToMax(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"understanding":"a plan","titles":["a","b","c","d","e"]}`))
	})

	out, err := v.GenerateSubtasks(context.Background(), SubtaskInput{Title: "big task", MaxCount: 3})
	if err != nil {
		t.Fatalf("generate subtasks: %v", err)
	}
	if len(out.Titles) != 3 {
		t.Fatalf("expected 3 titles after truncation, got %d", len(out.Titles))
	}
}

func TestSuggestTaskRejectsUntitledSuggestion(t *testing.T) {
	v := newTestVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description":"no title here","confidence":0.4}`))
	})

	_, err := v.SuggestTask(context.Background(), "note body", 4)
	if !apperr.IsCode(err, apperr.CodeAIServiceUnavailable) {
		t.Fatalf("expected AI_SERVICE_UNAVAILABLE, got %v", err)
	}
}

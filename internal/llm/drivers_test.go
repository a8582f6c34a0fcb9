package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kandev/agentflow/internal/common/apperr"
)

func TestHTTPDriver_CompleteParsesChatResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		resp := chatResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "hello there"}}}
		resp.Usage.PromptTokens = 10
		resp.Usage.CompletionTokens = 5
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	driver := NewHTTPDriver(server.URL, "test-key")
	text, meta, err := driver.Complete(context.Background(), "some-model", []Message{{Role: RoleUser, Text: "hi"}}, Options{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected parsed message content, got %q", text)
	}
	if meta.InputTokens != 10 || meta.OutputTokens != 5 {
		t.Errorf("expected usage to populate metadata, got %+v", meta)
	}
}

func TestHTTPDriver_ClassifiesErrorStatuses(t *testing.T) {
	cases := []struct {
		status  int
		checker func(error) bool
	}{
		{http.StatusUnauthorized, isProviderAuthError},
		{http.StatusTooManyRequests, apperr.IsRetryable},
		{http.StatusPaymentRequired, func(err error) bool { return !apperr.IsRetryable(err) }},
		{http.StatusInternalServerError, apperr.IsRetryable},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		}))

		driver := NewHTTPDriver(server.URL, "test-key")
		_, _, err := driver.Complete(context.Background(), "some-model", []Message{{Role: RoleUser, Text: "hi"}}, Options{})
		if err == nil {
			t.Errorf("status %d: expected an error", tc.status)
		} else if !tc.checker(err) {
			t.Errorf("status %d: error %v did not satisfy expected classification", tc.status, err)
		}
		server.Close()
	}
}

func isProviderAuthError(err error) bool {
	return apperr.GetHTTPStatus(err) == http.StatusUnauthorized
}

func TestStubDriver_EchoesLastUserMessage(t *testing.T) {
	driver := NewStubDriver()
	text, _, err := driver.Complete(context.Background(), "local-default", []Message{
		{Role: RoleSystem, Text: "be helpful"},
		{Role: RoleUser, Text: "first"},
		{Role: RoleAssistant, Text: "ack"},
		{Role: RoleUser, Text: "second"},
	}, Options{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "stub response to: second" {
		t.Errorf("expected stub to echo the most recent user message, got %q", text)
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// Provider names used by the registry's provider field (§4.2).
const (
	ProviderPrimary   = "primary"
	ProviderAlternate = "alternate"
	ProviderLocal     = "local"
)

// httpDriver is a thin net/http client against one provider's chat-
// completions endpoint, mirroring the teacher's GitHub PAT client rather
// than depending on a generated vendor SDK.
type httpDriver struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPDriver builds a driver for a provider whose chat-completions
// endpoint lives at baseURL and authenticates with a bearer apiKey.
func NewHTTPDriver(baseURL, apiKey string) Driver {
	return &httpDriver{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (d *httpDriver) Complete(ctx context.Context, nativeModel string, messages []Message, opts Options) (string, Metadata, error) {
	reqBody := chatRequest{
		Model:       nativeModel,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", Metadata{}, apperr.InternalError("failed to marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", Metadata{}, apperr.TransportError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", Metadata{}, apperr.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Metadata{}, apperr.TransportError(err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return "", Metadata{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Metadata{}, apperr.MalformedResponse(err.Error())
	}
	if len(parsed.Choices) == 0 {
		return "", Metadata{}, apperr.MalformedResponse("no choices in response")
	}

	return parsed.Choices[0].Message.Content, Metadata{
		NativeModel:  nativeModel,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func (d *httpDriver) Stream(ctx context.Context, nativeModel string, messages []Message, opts Options) (<-chan Chunk, error) {
	text, _, err := d.Complete(ctx, nativeModel, messages, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: text}
	ch <- Chunk{Done: true}
	close(ch)
	return ch, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.ProviderAuthError(string(body))
	case status == http.StatusTooManyRequests:
		return apperr.ProviderRateLimit(string(body))
	case status == http.StatusPaymentRequired:
		return apperr.ProviderQuotaExhausted(string(body))
	case status >= 500:
		return apperr.ProviderServerError(fmt.Sprintf("status %d: %s", status, body))
	default:
		return apperr.MalformedResponse(fmt.Sprintf("unexpected status %d: %s", status, body))
	}
}

func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Text}
	}
	return out
}

// stubDriver is the deterministic, no-network driver reserved for the
// locally-served registry entry and for tests (§4.2).
type stubDriver struct{}

// NewStubDriver returns a driver that echoes a deterministic response
// derived from the last user message, without making any network call.
func NewStubDriver() Driver {
	return &stubDriver{}
}

func (s *stubDriver) Complete(_ context.Context, nativeModel string, messages []Message, _ Options) (string, Metadata, error) {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Text
			break
		}
	}
	return fmt.Sprintf("stub response to: %s", last), Metadata{NativeModel: nativeModel}, nil
}

func (s *stubDriver) Stream(ctx context.Context, nativeModel string, messages []Message, opts Options) (<-chan Chunk, error) {
	text, _, _ := s.Complete(ctx, nativeModel, messages, opts)
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: text}
	ch <- Chunk{Done: true}
	close(ch)
	return ch, nil
}

// scriptedDriver is a no-network driver for tests that need a canned
// response to vary per role and per turn, rather than stubDriver's single
// verbatim echo — e.g. driving a coordinator through a multi-turn
// delegation sequence. Responses are resolved by the system prompt text
// (which is role-specific, per defaultSystemPrompt) and a per-prompt call
// counter, so the same driver instance can be shared across every agent in
// a workflow.
type scriptedDriver struct {
	mu     sync.Mutex
	calls  map[string]int
	script func(systemPrompt string, callIndex int) string
}

// NewScriptedDriver returns a driver whose response for each call is
// produced by script, given that call's system prompt text and a
// zero-based counter of how many times that exact system prompt has been
// seen before.
func NewScriptedDriver(script func(systemPrompt string, callIndex int) string) Driver {
	return &scriptedDriver{calls: make(map[string]int), script: script}
}

func (d *scriptedDriver) Complete(_ context.Context, nativeModel string, messages []Message, _ Options) (string, Metadata, error) {
	systemPrompt := ""
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		systemPrompt = messages[0].Text
	}

	d.mu.Lock()
	callIndex := d.calls[systemPrompt]
	d.calls[systemPrompt] = callIndex + 1
	d.mu.Unlock()

	return d.script(systemPrompt, callIndex), Metadata{NativeModel: nativeModel}, nil
}

func (d *scriptedDriver) Stream(ctx context.Context, nativeModel string, messages []Message, opts Options) (<-chan Chunk, error) {
	text, _, _ := d.Complete(ctx, nativeModel, messages, opts)
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: text}
	ch <- Chunk{Done: true}
	close(ch)
	return ch, nil
}

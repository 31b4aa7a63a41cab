package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskhive/internal/apperr"
)

// TaskContext is the task summary attached to context-aware chat calls.
type TaskContext struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Priority string     `json:"priority"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Done     bool       `json:"done"`
}

// ChatInput is the vendor chat request.
type ChatInput struct {
	Message string        `json:"message"`
	Tasks   []TaskContext `json:"tasks,omitempty"`
}

// ChatOutput is the vendor's structured chat response.
type ChatOutput struct {
	Message     string             `json:"message"`
	Suggestions []ActionSuggestion `json:"suggestions"`
}

// SubtaskInput asks the vendor to break a task down.
type SubtaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	MaxCount    int    `json:"max_count"`
}

// SubtaskOutput is the vendor's breakdown.
type SubtaskOutput struct {
	Understanding string   `json:"understanding"`
	Titles        []string `json:"titles"`
}

// StreamFunc receives incremental chat deltas during SSE streaming.
type StreamFunc func(delta string) error

// Vendor is the assistant provider port.
type Vendor interface {
	Chat(ctx context.Context, in ChatInput) (*ChatOutput, error)
	ChatStream(ctx context.Context, in ChatInput, emit StreamFunc) (*ChatOutput, error)
	GenerateSubtasks(ctx context.Context, in SubtaskInput) (*SubtaskOutput, error)
	SuggestTask(ctx context.Context, noteBody string, maxSubtasks int) (*TaskSuggestion, error)
	Transcribe(ctx context.Context, audioURL string, maxSeconds int) (string, bool, error)
}

// HTTPVendor talks to the assistant provider over JSON plus SSE.
type HTTPVendor struct {
	baseURL           string
	apiKey            string
	chatTimeout       time.Duration
	transcribeTimeout time.Duration
	client            *http.Client
}

// NewHTTPVendor builds the provider client. Timeouts are per call, not on
// the shared http.Client, so SSE streams are bounded by context instead.
func NewHTTPVendor(baseURL, apiKey string, chatTimeout, transcribeTimeout time.Duration) (*HTTPVendor, error) {
	if baseURL == "" {
		return nil, errors.New("ai vendor requires base url")
	}
	if chatTimeout <= 0 {
		chatTimeout = 30 * time.Second
	}
	if transcribeTimeout <= 0 {
		transcribeTimeout = 60 * time.Second
	}
	return &HTTPVendor{
		baseURL:           strings.TrimRight(baseURL, "/"),
		apiKey:            apiKey,
		chatTimeout:       chatTimeout,
		transcribeTimeout: transcribeTimeout,
		client:            &http.Client{},
	}, nil
}

// Chat runs a non-streaming chat call.
func (v *HTTPVendor) Chat(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, v.chatTimeout)
	defer cancel()

	var out ChatOutput
	if err := v.postJSON(ctx, "/v1/chat", in, &out); err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, apperr.AIUnavailable("assistant returned an empty response")
	}
	return &out, nil
}

// ChatStream runs a chat call over SSE, emitting message deltas as they
// arrive. The final event carries the structured response.
func (v *HTTPVendor) ChatStream(ctx context.Context, in ChatInput, emit StreamFunc) (*ChatOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, v.chatTimeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal chat input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat stream request: %w", err)
	}
	v.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, vendorErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.AIUnavailable("assistant stream returned status %d", resp.StatusCode)
	}

	var final *ChatOutput
	var transcript strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var evt struct {
			Delta string      `json:"delta,omitempty"`
			Final *ChatOutput `json:"final,omitempty"`
		}
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, apperr.AIUnavailable("assistant stream sent malformed event").WithCause(err)
		}
		if evt.Delta != "" {
			transcript.WriteString(evt.Delta)
			if emit != nil {
				if err := emit(evt.Delta); err != nil {
					return nil, err
				}
			}
		}
		if evt.Final != nil {
			final = evt.Final
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, vendorErr(err)
	}
	if final == nil {
		if transcript.Len() == 0 {
			return nil, apperr.AIUnavailable("assistant stream ended without a response")
		}
		final = &ChatOutput{Message: transcript.String()}
	}
	return final, nil
}

// GenerateSubtasks asks the vendor to break a task into at most MaxCount
// subtask titles.
func (v *HTTPVendor) GenerateSubtasks(ctx context.Context, in SubtaskInput) (*SubtaskOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, v.chatTimeout)
	defer cancel()

	var out SubtaskOutput
	if err := v.postJSON(ctx, "/v1/subtasks", in, &out); err != nil {
		return nil, err
	}
	if len(out.Titles) == 0 {
		return nil, apperr.AIUnavailable("assistant returned no subtask suggestions")
	}
	if len(out.Titles) > in.MaxCount {
		out.Titles = out.Titles[:in.MaxCount]
	}
	return &out, nil
}

// SuggestTask asks the vendor to turn a note body into a task proposal.
func (v *HTTPVendor) SuggestTask(ctx context.Context, noteBody string, maxSubtasks int) (*TaskSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, v.chatTimeout)
	defer cancel()

	in := struct {
		Body        string `json:"body"`
		MaxSubtasks int    `json:"max_subtasks"`
	}{noteBody, maxSubtasks}

	var out TaskSuggestion
	if err := v.postJSON(ctx, "/v1/note-to-task", in, &out); err != nil {
		return nil, err
	}
	if out.Title == "" {
		return nil, apperr.AIUnavailable("assistant returned a task suggestion without a title")
	}
	if len(out.Subtasks) > maxSubtasks {
		out.Subtasks = out.Subtasks[:maxSubtasks]
	}
	return &out, nil
}

// Transcribe streams speech-to-text for the audio at audioURL. The second
// return reports whether the transcript is partial because the hard
// duration cutoff fired.
func (v *HTTPVendor) Transcribe(ctx context.Context, audioURL string, maxSeconds int) (string, bool, error) {
	deadline := time.Duration(maxSeconds) * time.Second
	if deadline <= 0 || deadline > v.transcribeTimeout*10 {
		deadline = v.transcribeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	in := struct {
		AudioURL   string `json:"audio_url"`
		MaxSeconds int    `json:"max_seconds"`
	}{audioURL, maxSeconds}

	var out struct {
		Text    string `json:"text"`
		Partial bool   `json:"partial"`
	}
	err := v.postJSON(ctx, "/v1/transcribe", in, &out)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.Text, out.Partial, nil
}

func (v *HTTPVendor) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal vendor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build vendor request: %w", err)
	}
	v.setHeaders(req)

	resp, err := v.client.Do(req)
	if err != nil {
		return vendorErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return vendorErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.AIUnavailable("assistant returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.AIUnavailable("assistant response failed validation").WithCause(err)
	}
	return nil
}

func (v *HTTPVendor) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}
}

// vendorErr maps transport failures to the 503 the pipeline expects.
func vendorErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.AIUnavailable("assistant unreachable").WithCause(err)
}

package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// OpenAIServer is a fake OpenAI chat completion endpoint.
type OpenAIServer struct {
	*httptest.Server
	calls atomic.Int32
}

// Calls returns the number of chat completion requests received.
func (s *OpenAIServer) Calls() int {
	return int(s.calls.Load())
}

// NewOpenAIServer starts a fake chat completion endpoint that answers every request with the content returned by
// reply. Any status other than 200 makes the endpoint fail with that status instead. Point the client's BaseURL at URL.
func NewOpenAIServer(t *testing.T, reply func(req openai.ChatCompletionRequest) (string, int)) *OpenAIServer {
	t.Helper()
	s := &OpenAIServer{} //nolint:exhaustruct // server is set below.
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, status := reply(req)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}
		resp := openai.ChatCompletionResponse{ //nolint:exhaustruct // only the fields the client reads.
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{ //nolint:exhaustruct // only the fields the client reads.
				Index: 0,
				Message: openai.ChatCompletionMessage{ //nolint:exhaustruct // only the fields the client reads.
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.Close)
	return s
}

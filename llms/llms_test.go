package llms_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"llama-bot/llms"
	"llama-bot/types"
)

func conv(turns ...string) types.Conversation {
	c := types.Conversation{System: types.Message{Role: types.RoleSystem, Content: "sys"}}
	for _, t := range turns {
		c.Turns = append(c.Turns, types.Message{Role: types.RoleUser, Content: t})
	}
	return c
}

var _ = Describe("Truncate", func() {
	It("returns the conversation unchanged when disabled", func() {
		c := conv("aaaa", "bbbb")
		Expect(llms.Truncate(c, 0)).To(Equal(c))
	})

	It("returns the conversation unchanged when it fits", func() {
		c := conv("aaaa", "bbbb")
		Expect(llms.Truncate(c, 100)).To(Equal(c))
	})

	It("drops the oldest turns first", func() {
		c := conv("aaaa", "bbbb", "cccc")
		out := llms.Truncate(c, 3+8)
		Expect(out.System).To(Equal(c.System))
		Expect(out.Turns).To(Equal(c.Turns[1:]))
	})

	It("always keeps the newest turn", func() {
		c := conv(strings.Repeat("a", 50), strings.Repeat("b", 50))
		out := llms.Truncate(c, 10)
		Expect(out.Turns).To(HaveLen(1))
		Expect(out.Turns[0].Content).To(Equal(strings.Repeat("b", 50)))
	})

	It("does not modify the input", func() {
		c := conv("aaaa", "bbbb", "cccc")
		_ = llms.Truncate(c, 5)
		Expect(c.Turns).To(HaveLen(3))
	})
})

var _ = Describe("New", func() {
	It("rejects unknown providers", func() {
		_, err := llms.New(llms.Config{Provider: "mystery", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults to the OpenAI-compatible backend", func() {
		backend, err := llms.New(llms.Config{BaseURL: "http://localhost:8000/v1/"})
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.Model()).To(Equal("meta-llama/Meta-Llama-3-8B-Instruct"))
	})

	It("requires an API key for anthropic", func() {
		_, err := llms.New(llms.Config{Provider: llms.ProviderAnthropic})
		Expect(err).To(HaveOccurred())
	})

	It("requires an API key for gemini", func() {
		_, err := llms.New(llms.Config{Provider: llms.ProviderGemini})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("OpenAIBackend", func() {
	var (
		server  *httptest.Server
		request map[string]any
		reply   string
	)

	BeforeEach(func() {
		request = nil
		reply = "Use slices.Reverse."
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("/chat/completions"))
			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &request)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "llama3",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": reply},
				}},
				"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
			})
		}))
		DeferCleanup(server.Close)
	})

	It("sends the persona, turns and sampling options", func() {
		backend, err := llms.NewOpenAIBackend(llms.Config{APIKey: "k", BaseURL: server.URL + "/v1/", Model: "llama3"})
		Expect(err).NotTo(HaveOccurred())

		text, err := backend.Generate(context.Background(), conv("alice (in group users): @llama help"), llms.DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Use slices.Reverse."))

		Expect(request["model"]).To(Equal("llama3"))
		Expect(request["max_tokens"]).To(BeNumerically("==", 256))
		Expect(request["temperature"]).To(BeNumerically("~", 0.6, 1e-9))
		Expect(request["top_p"]).To(BeNumerically("~", 0.9, 1e-9))

		messages := request["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		Expect(messages[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(messages[1].(map[string]any)["role"]).To(Equal("user"))
		Expect(messages[1].(map[string]any)["content"]).To(Equal("alice (in group users): @llama help"))
	})

	It("reports blank output as a generation error", func() {
		reply = "   "
		backend, err := llms.NewOpenAIBackend(llms.Config{APIKey: "k", BaseURL: server.URL + "/v1/"})
		Expect(err).NotTo(HaveOccurred())

		_, err = backend.Generate(context.Background(), conv("x"), llms.DefaultOptions())
		var genErr *types.GenerationError
		Expect(errors.As(err, &genErr)).To(BeTrue())
	})
})

var _ = Describe("AnthropicBackend", func() {
	It("passes the persona as the system prompt", func() {
		var request map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(json.NewDecoder(r.Body).Decode(&request)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{
				"id": "msg_1",
				"type": "message",
				"role": "assistant",
				"model": "claude",
				"content": [{"type": "text", "text": "Hello there."}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 3, "output_tokens": 2}
			}`)
		}))
		DeferCleanup(server.Close)

		backend, err := llms.NewAnthropicBackend(llms.Config{APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		text, err := backend.Generate(context.Background(), conv("bob (in group Experts): @llama hi"), llms.DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Hello there."))

		system := request["system"].([]any)
		Expect(system[0].(map[string]any)["text"]).To(Equal("sys"))
		Expect(request["max_tokens"]).To(BeNumerically("==", 256))
		Expect(request["messages"]).To(HaveLen(1))
	})
})

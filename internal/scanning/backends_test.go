package scanning

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		img     Image
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		backend = NewOllama(server.URL()+"/", 5*time.Second)
		img = Image{Data: []byte("png-bytes"), MIMEType: "image/png"}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = backend.Generate(context.Background(), "llava:1.6", img, "read it")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSONRepresenting(ollamaChatRequest{
					Model:  "llava:1.6",
					Stream: false,
					Format: "json",
					Messages: []ollamaMessage{
						{Role: "system", Content: ollamaSystemPrompt},
						{Role: "user", Content: "read it", Images: []string{base64.StdEncoding.EncodeToString([]byte("png-bytes"))}},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"total": 3.5}`},
					Done:    true,
				}),
			))
		})

		It("should return the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"total": 3.5}`))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))
		})

		It("should return an error with the status", func() {
			Expect(err).To(MatchError(ContainSubstring("status 404")))
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})

	When("the body carries an error", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{Error: "out of memory"}))
		})

		It("should return it", func() {
			Expect(err).To(MatchError(ContainSubstring("out of memory")))
		})
	})

	When("the body is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "nope"))
		})

		It("should return a decode error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding response")))
		})
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		backend *OpenAI
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		backend = NewOpenAI("test-key", server.URL()+"/v1", 5*time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = backend.Generate(context.Background(), "gpt-4o-mini", Image{Data: []byte("png"), MIMEType: "image/png"}, "read it")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					var body map[string]any
					Expect(decodeJSONBody(r, &body)).To(Succeed())
					Expect(body["model"]).To(Equal("gpt-4o-mini"))
					messages := body["messages"].([]any)
					content := messages[0].(map[string]any)["content"].([]any)
					Expect(content).To(HaveLen(2))
					imagePart := content[1].(map[string]any)["image_url"].(map[string]any)
					Expect(imagePart["url"]).To(Equal("data:image/png;base64,cG5n"))
				},
				ghttp.RespondWith(http.StatusOK, `{
					"id": "chatcmpl-1",
					"object": "chat.completion",
					"model": "gpt-4o-mini",
					"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"total\": 8}"}}]
				}`, http.Header{"Content-Type": []string{"application/json"}}),
			))
		})

		It("should return the first choice", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"total": 8}`))
		})
	})

	When("there are no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"choices": []}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("no choices")))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized,
				`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("invalid api key")))
		})
	})
})

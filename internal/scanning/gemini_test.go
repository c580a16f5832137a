package scanning

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
)

// geminiRequest is the subset of a generateContent body the specs inspect
type geminiRequest struct {
	Contents []struct {
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

var _ = Describe("Gemini", func() {
	const streamPath = "/v1beta/models/gemini-2.5-flash:streamGenerateContent"

	var (
		server   *ghttp.Server
		backend  *Gemini
		img      Image
		received geminiRequest
		apiKey   string
		text     string
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		img = Image{Data: []byte("png-bytes"), MIMEType: "image/png"}
		received = geminiRequest{}
		apiKey = ""

		var newErr error
		backend, newErr = NewGemini(context.Background(), "test-key", 5*time.Second, option.WithEndpoint(server.URL()))
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		backend.Close()
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = backend.Generate(context.Background(), "gemini-2.5-flash", img, "read it")
	})

	capture := func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.URL.Query().Get("key")
		Expect(decodeJSONBody(r, &received)).To(Succeed())
	}

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, streamPath),
				capture,
				ghttp.RespondWith(http.StatusOK,
					`[{"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"total\": "}, {"text": "12.5}"}]}, "finishReason": 1}]}]`,
					http.Header{"Content-Type": {"application/json"}}),
			))
		})

		It("should join the text parts", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"total": 12.5}`))
		})

		It("should send the key, image and prompt", func() {
			Expect(apiKey).To(Equal("test-key"))
			Expect(received.Contents).To(HaveLen(1))

			parts := received.Contents[0].Parts
			Expect(parts).To(HaveLen(2))
			Expect(parts[0].InlineData).NotTo(BeNil())
			Expect(parts[0].InlineData.MIMEType).To(Equal("image/png"))
			Expect(parts[0].InlineData.Data).To(Equal(base64.StdEncoding.EncodeToString([]byte("png-bytes"))))
			Expect(parts[1].Text).To(Equal("read it"))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, streamPath),
				ghttp.RespondWith(http.StatusBadRequest,
					`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`,
					http.Header{"Content-Type": {"application/json"}}),
			))
		})

		It("should return an error naming the model", func() {
			Expect(err).To(MatchError(ContainSubstring("generating content with gemini-2.5-flash")))
			Expect(err).To(MatchError(ContainSubstring("API key not valid")))
			Expect(text).To(BeEmpty())
		})
	})
})

var _ = Describe("NewGemini", func() {
	It("should require an API key", func() {
		_, err := NewGemini(context.Background(), "", time.Second)
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})

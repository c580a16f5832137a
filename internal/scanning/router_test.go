package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockBackend records the model it was asked for
type mockBackend struct {
	response string
	err      error
	closeErr error
	models   []string
	closed   bool
}

func (m *mockBackend) Generate(ctx context.Context, model string, img Image, prompt string) (string, error) {
	m.models = append(m.models, model)
	return m.response, m.err
}

func (m *mockBackend) Close() error {
	m.closed = true
	return m.closeErr
}

var _ = Describe("ParseBackendID", func() {
	DescribeTable("splitting identifiers",
		func(id, provider, model string) {
			p, m := ParseBackendID(id)
			Expect(p).To(Equal(provider))
			Expect(m).To(Equal(model))
		},
		Entry("bare gemini model", "gemini-2.5-flash", ProviderGemini, "gemini-2.5-flash"),
		Entry("prefixed gemini model", "gemini:gemini-1.5-pro", ProviderGemini, "gemini-1.5-pro"),
		Entry("ollama model with tag", "ollama:llava:1.6", ProviderOllama, "llava:1.6"),
		Entry("openai model with slash", "openai:google/gemini-flash-1.5", ProviderOpenAI, "google/gemini-flash-1.5"),
		Entry("unknown prefix", "llava:1.6", ProviderGemini, "llava:1.6"),
	)
})

var _ = Describe("Router", func() {
	var (
		router *Router
		gemini *mockBackend
		ollama *mockBackend
		text   string
		err    error
		id     string
	)

	BeforeEach(func() {
		gemini = &mockBackend{response: "from gemini"}
		ollama = &mockBackend{response: "from ollama"}
		router = NewRouter()
		router.Register(ProviderGemini, gemini)
		router.Register(ProviderOllama, ollama)
	})

	JustBeforeEach(func() {
		text, err = router.Invoke(context.Background(), id, Image{}, "prompt")
	})

	When("the identifier names a registered provider", func() {
		BeforeEach(func() {
			id = "ollama:llava"
		})

		It("should call that provider with the model", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("from ollama"))
			Expect(ollama.models).To(Equal([]string{"llava"}))
			Expect(gemini.models).To(BeEmpty())
		})
	})

	When("the identifier is a bare model", func() {
		BeforeEach(func() {
			id = "gemini-pro"
		})

		It("should call gemini", func() {
			Expect(text).To(Equal("from gemini"))
			Expect(gemini.models).To(Equal([]string{"gemini-pro"}))
		})
	})

	When("the provider is not configured", func() {
		BeforeEach(func() {
			id = "openai:gpt-4o"
		})

		It("should return an unsupported backend error", func() {
			Expect(errors.Is(err, ErrUnsupportedBackend)).To(BeTrue())
		})
	})

	When("the model is missing", func() {
		BeforeEach(func() {
			id = "ollama:"
		})

		It("should return an unsupported backend error", func() {
			Expect(errors.Is(err, ErrUnsupportedBackend)).To(BeTrue())
		})
	})

	Describe("Close", func() {
		It("should close every provider and join errors", func() {
			ollama.closeErr = errors.New("boom")
			err := router.Close()
			Expect(gemini.closed).To(BeTrue())
			Expect(ollama.closed).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("closing ollama: boom")))
		})
	})
})

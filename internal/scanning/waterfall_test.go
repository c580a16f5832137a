package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockInvoker answers per backend identifier and records every call
type mockInvoker struct {
	responses map[string]string
	errs      map[string]error
	panics    map[string]any
	calls     []string
}

func newMockInvoker() *mockInvoker {
	return &mockInvoker{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		panics:    make(map[string]any),
	}
}

func (m *mockInvoker) Invoke(ctx context.Context, backendID string, img Image, prompt string) (string, error) {
	m.calls = append(m.calls, backendID)
	if p, ok := m.panics[backendID]; ok {
		panic(p)
	}
	if err, ok := m.errs[backendID]; ok {
		return "", err
	}
	return m.responses[backendID], nil
}

var _ = Describe("Waterfall", func() {
	var (
		invoker   *mockInvoker
		backends  []string
		waterfall *Waterfall
		result    Extraction
	)

	BeforeEach(func() {
		invoker = newMockInvoker()
		backends = []string{"model-a", "model-b", "model-c"}
	})

	JustBeforeEach(func() {
		waterfall = NewWaterfall(invoker, backends)
		result = waterfall.Extract(context.Background(), Image{Data: []byte("png"), MIMEType: "image/png"}, ReceiptPrompt)
	})

	When("the first backend fails and the second succeeds", func() {
		BeforeEach(func() {
			invoker.errs["model-a"] = errors.New("quota exceeded")
			invoker.responses["model-b"] = `{"total": 12}`
			invoker.responses["model-c"] = `{"total": 99}`
		})

		It("should invoke exactly two backends", func() {
			Expect(invoker.calls).To(Equal([]string{"model-a", "model-b"}))
		})

		It("should return the second backend's text", func() {
			Expect(result.OK).To(BeTrue())
			Expect(result.Backend).To(Equal("model-b"))
			Expect(result.Text).To(Equal(`{"total": 12}`))
		})

		It("should record both attempts", func() {
			Expect(result.Attempts).To(HaveLen(2))
			Expect(result.Attempts[0].Backend).To(Equal("model-a"))
			Expect(result.Attempts[0].Err).To(Equal("quota exceeded"))
			Expect(result.Attempts[1].Failed()).To(BeFalse())
			Expect(result.LastError()).To(Equal("model-a: quota exceeded"))
		})
	})

	When("a backend panics", func() {
		BeforeEach(func() {
			invoker.panics["model-a"] = "nil map write"
			invoker.responses["model-b"] = "ok"
		})

		It("should record the panic and continue", func() {
			Expect(result.OK).To(BeTrue())
			Expect(result.Backend).To(Equal("model-b"))
			Expect(result.Attempts[0].Err).To(ContainSubstring("backend panicked: nil map write"))
		})
	})

	When("a backend returns only whitespace", func() {
		BeforeEach(func() {
			invoker.responses["model-a"] = "  \n"
			invoker.responses["model-b"] = "text"
		})

		It("should treat it as a failure", func() {
			Expect(result.Backend).To(Equal("model-b"))
			Expect(result.Attempts[0].Err).To(Equal(errEmptyResponse.Error()))
		})
	})

	When("every backend fails", func() {
		BeforeEach(func() {
			for _, b := range backends {
				invoker.errs[b] = errors.New(b + " down")
			}
		})

		It("should report exhaustion with every attempt", func() {
			Expect(result.OK).To(BeFalse())
			Expect(result.Text).To(BeEmpty())
			Expect(result.Attempts).To(HaveLen(3))
			Expect(result.LastError()).To(Equal("model-c: model-c down"))
		})
	})

	When("there are no backends", func() {
		BeforeEach(func() {
			backends = nil
		})

		It("should report exhaustion without attempts", func() {
			Expect(result.OK).To(BeFalse())
			Expect(result.Attempts).To(BeEmpty())
			Expect(result.LastError()).To(BeEmpty())
		})
	})

	It("should not share the caller's backend slice", func() {
		list := []string{"a", "b"}
		w := NewWaterfall(invoker, list)
		list[0] = "changed"
		Expect(w.Backends()).To(Equal([]string{"a", "b"}))
	})
})

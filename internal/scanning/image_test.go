package scanning

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// testPNG returns a small valid PNG
func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func testJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

func decodeJSONBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

var _ = Describe("DecodeImage", func() {
	var (
		payload string
		img     Image
		err     error
	)

	JustBeforeEach(func() {
		img, err = DecodeImage(payload)
	})

	When("the payload is a data URI", func() {
		BeforeEach(func() {
			payload = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(testJPEG())
		})

		It("should use the declared type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.MIMEType).To(Equal("image/jpeg"))
			Expect(img.Data).To(Equal(testJPEG()))
		})
	})

	When("the payload is bare base64", func() {
		BeforeEach(func() {
			payload = base64.StdEncoding.EncodeToString(testPNG())
		})

		It("should sniff the type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.MIMEType).To(Equal("image/png"))
		})
	})

	When("the base64 is unpadded", func() {
		BeforeEach(func() {
			payload = base64.RawStdEncoding.EncodeToString([]byte("%PDF-1.4 receipt"))
		})

		It("should still decode", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.MIMEType).To(Equal("application/pdf"))
		})
	})

	When("the base64 is invalid", func() {
		BeforeEach(func() {
			payload = "data:image/png;base64,***"
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding base64 image")))
		})
	})

	When("the data URI is not base64", func() {
		BeforeEach(func() {
			payload = "data:image/png,abc"
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the payload is empty", func() {
		BeforeEach(func() {
			payload = "data:image/png;base64,"
		})

		It("should return ErrEmptyImage", func() {
			Expect(err).To(MatchError(ErrEmptyImage))
		})
	})
})

var _ = Describe("PrepareImage", func() {
	It("should pass PNG through", func() {
		data := testPNG()
		img, err := PrepareImage(Image{Data: data, MIMEType: "image/png"})
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Data).To(Equal(data))
		Expect(img.Format()).To(Equal("png"))
	})

	It("should convert JPEG to PNG", func() {
		img, err := PrepareImage(Image{Data: testJPEG(), MIMEType: "image/jpeg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(img.MIMEType).To(Equal("image/png"))
		_, err = png.Decode(bytes.NewReader(img.Data))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject bytes that are not an image", func() {
		_, err := PrepareImage(Image{Data: []byte("fake image data"), MIMEType: "image/jpeg"})
		Expect(err).To(HaveOccurred())
	})

	It("should reject a corrupt PNG", func() {
		_, err := PrepareImage(Image{Data: []byte("fake image data"), MIMEType: "image/png"})
		Expect(err).To(MatchError(ContainSubstring("decoding PNG")))
	})

	It("should render the data URI", func() {
		Expect(Image{Data: []byte("png"), MIMEType: "image/png"}.DataURI()).To(Equal("data:image/png;base64,cG5n"))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmp42\x00\x00"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})

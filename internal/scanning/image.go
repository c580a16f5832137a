package scanning

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrEmptyImage is returned when a payload carries no image bytes
var ErrEmptyImage = errors.New("image payload is empty")

// Image is a receipt payload handed to the extraction backends
type Image struct {
	Data     []byte
	MIMEType string
}

// Format returns the MIME subtype, e.g. "png" for "image/png"
func (i Image) Format() string {
	_, format, _ := strings.Cut(i.MIMEType, "/")
	return format
}

// DataURI encodes the image as a base64 data URI
func (i Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// DecodeImage accepts a data URI ("data:image/jpeg;base64,...") or bare base64
func DecodeImage(payload string) (Image, error) {
	payload = strings.TrimSpace(payload)

	mimeType := ""
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		meta, encoded, found := strings.Cut(rest, ",")
		if !found {
			return Image{}, fmt.Errorf("malformed data URI")
		}
		mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
		if !isBase64 {
			return Image{}, fmt.Errorf("data URI is not base64 encoded")
		}
		mimeType = mediaType
		payload = encoded
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decoding base64 image: %w", err)
	}

	return NewImage(data, mimeType)
}

// NewImage wraps raw bytes, sniffing the MIME type when none is given
func NewImage(data []byte, mimeType string) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i != -1 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return Image{Data: data, MIMEType: mimeType}, nil
}

// PrepareImage converts the image to PNG so every backend receives the same format
func PrepareImage(img Image) (Image, error) {
	data, mimeType, converted, err := prepareImageData(img.Data, img.MIMEType)
	if err != nil {
		return Image{}, err
	}
	if converted {
		slog.Debug("Converted receipt image", "from", img.MIMEType, "to", mimeType, "bytes", len(data))
	}
	return Image{Data: data, MIMEType: mimeType}, nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

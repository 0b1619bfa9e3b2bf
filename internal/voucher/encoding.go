package voucher

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// EncodedImage is an RFC 2397 data URL, "data:<media-type>;base64,<payload>".
// The same form is used for storage, transport and retrieval.
type EncodedImage string

const (
	dataURLScheme = "data:"
	base64Marker  = ";base64"
)

// Encode wraps raw bytes losslessly.
func Encode(mediaType string, data []byte) EncodedImage {
	return EncodedImage(dataURLScheme + mediaType + base64Marker + "," + base64.StdEncoding.EncodeToString(data))
}

func (e EncodedImage) split() (mediaType, payload string, err error) {
	s := string(e)
	if !strings.HasPrefix(s, dataURLScheme) {
		return "", "", fmt.Errorf("%w: missing data scheme", ErrMalformedEncoding)
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", "", fmt.Errorf("%w: missing payload separator", ErrMalformedEncoding)
	}
	meta := s[len(dataURLScheme):comma]
	if !strings.HasSuffix(meta, base64Marker) {
		return "", "", fmt.Errorf("%w: payload is not base64", ErrMalformedEncoding)
	}
	return strings.TrimSuffix(meta, base64Marker), s[comma+1:], nil
}

// MediaType returns the declared media type, or "" if e is malformed.
func (e EncodedImage) MediaType() string {
	mt, _, err := e.split()
	if err != nil {
		return ""
	}
	return mt
}

// Decode returns the exact bytes that were encoded.
func (e EncodedImage) Decode() ([]byte, error) {
	_, payload, err := e.split()
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return data, nil
}

// ByteSize is the size of the decoded bytes, computed from the payload
// length minus padding without decoding. The data URL header and the 4/3
// base64 inflation are not counted.
func (e EncodedImage) ByteSize() int64 {
	_, payload, err := e.split()
	if err != nil {
		return 0
	}
	padding := 0
	for i := len(payload) - 1; i >= 0 && padding < 2 && payload[i] == '='; i-- {
		padding++
	}
	return int64(len(payload))*3/4 - int64(padding)
}

// Attachment is a processed proof-of-payment artifact.
type Attachment struct {
	EncodedImage EncodedImage
	// Thumbnail is empty for documents, which are never rasterized.
	Thumbnail        EncodedImage
	FileName         string
	MediaType        string
	OriginalByteSize int64
	FinalByteSize    int64
	WasCompressed    bool
	UploadDate       time.Time
}

// HasThumbnail reports whether a preview was rendered. Only documents lack
// one, so the answer holds when the image data was not loaded.
func (a *Attachment) HasThumbnail() bool {
	return a.Thumbnail != "" || a.MediaType != MediaTypePDF
}

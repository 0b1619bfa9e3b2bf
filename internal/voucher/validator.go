package voucher

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the declared-size ceiling for uploads (5 MiB).
const DefaultMaxFileSize int64 = 5 << 20

const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeGIF  = "image/gif"
	MediaTypeWebP = "image/webp"
	MediaTypePDF  = "application/pdf"
)

var extensionTypes = map[string]string{
	".jpg":  MediaTypeJPEG,
	".jpeg": MediaTypeJPEG,
	".png":  MediaTypePNG,
	".gif":  MediaTypeGIF,
	".webp": MediaTypeWebP,
	".pdf":  MediaTypePDF,
}

// File is an uploaded file as declared by the client.
type File struct {
	Name      string
	MediaType string
	Size      int64 // declared size; len(Data) when not declared
	Data      []byte
}

func (f File) declaredSize() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// Validator accepts or refuses a file from its declared metadata only.
// File content is not sniffed.
type Validator struct {
	maxSize int64
	allowed map[string]bool
}

// NewValidator builds a validator for the fixed allow-list. A non-positive
// maxSize selects DefaultMaxFileSize.
func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Validator{
		maxSize: maxSize,
		allowed: map[string]bool{
			MediaTypeJPEG: true,
			MediaTypePNG:  true,
			MediaTypeGIF:  true,
			MediaTypeWebP: true,
			MediaTypePDF:  true,
		},
	}
}

// Validate returns nil or a *ValidationError wrapping ErrUnsupportedType or
// ErrFileTooLarge.
func (v *Validator) Validate(f File) error {
	mediaType := NormalizeMediaType(f.MediaType, f.Name)
	if !v.allowed[mediaType] {
		return &ValidationError{Kind: ErrUnsupportedType, FileName: f.Name, MediaType: f.MediaType}
	}
	if size := f.declaredSize(); size > v.maxSize {
		return &ValidationError{Kind: ErrFileTooLarge, FileName: f.Name, MediaType: mediaType, Size: size, Limit: v.maxSize}
	}
	return nil
}

// NormalizeMediaType lowercases the declared type, drops parameters, folds
// aliases and falls back to the file extension when nothing useful was declared.
func NormalizeMediaType(declared, fileName string) string {
	mediaType := declared
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = extensionTypes[strings.ToLower(filepath.Ext(fileName))]
	}
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return MediaTypeJPEG
	}
	return mediaType
}

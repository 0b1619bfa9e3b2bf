package gcsuploader

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/voucher"
)

// ObjectStorage reads and writes whole objects.
type ObjectStorage interface {
	Upload(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
	Download(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

// Archive copies approved vouchers into a bucket for long-term retention.
type Archive struct {
	storage ObjectStorage
	bucket  string
}

// NewArchive returns an Archive writing to bucket.
func NewArchive(storage ObjectStorage, bucket string) *Archive {
	return &Archive{storage: storage, bucket: bucket}
}

// Store uploads the record's voucher bytes and returns the gs:// URI.
func (a *Archive) Store(ctx context.Context, rec *domain.PaymentRecord) (string, error) {
	if rec.Attachment == nil {
		return "", fmt.Errorf("Store: payment %s has no voucher", rec.ID)
	}
	data, err := rec.Attachment.EncodedImage.Decode()
	if err != nil {
		return "", fmt.Errorf("Store: decoding voucher of %s: %w", rec.ID, err)
	}
	mediaType := rec.Attachment.EncodedImage.MediaType()
	object := ObjectName(rec.PayerSubjectID, rec.ID, rec.Attachment.FileName, mediaType)
	if err := a.storage.Upload(ctx, a.bucket, object, mediaType, data); err != nil {
		return "", fmt.Errorf("Store: uploading %s: %w", object, err)
	}
	return GCSURI(a.bucket, object), nil
}

// Locate returns the URI Store would write rec's voucher to.
func (a *Archive) Locate(rec *domain.PaymentRecord) (string, error) {
	if rec.Attachment == nil {
		return "", fmt.Errorf("Locate: payment %s has no voucher", rec.ID)
	}
	object := ObjectName(rec.PayerSubjectID, rec.ID, rec.Attachment.FileName, rec.Attachment.EncodedImage.MediaType())
	return GCSURI(a.bucket, object), nil
}

// Fetch downloads an archived voucher by its gs:// URI.
func (a *Archive) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	return a.storage.Download(ctx, bucket, object)
}

var mediaTypeExtensions = map[string]string{
	voucher.MediaTypeJPEG: ".jpg",
	voucher.MediaTypePNG:  ".png",
	voucher.MediaTypeGIF:  ".gif",
	voucher.MediaTypeWebP: ".webp",
	voucher.MediaTypePDF:  ".pdf",
}

// ObjectName lays out vouchers as vouchers/<payer>/<payment>/<file>. The
// extension follows the stored media type, which differs from the upload's
// after recompression.
func ObjectName(payerSubjectID, paymentID, fileName, mediaType string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "voucher"
	}
	if ext, ok := mediaTypeExtensions[mediaType]; ok {
		current := strings.ToLower(path.Ext(base))
		if current != ext && !(ext == ".jpg" && current == ".jpeg") {
			base = strings.TrimSuffix(base, path.Ext(base)) + ext
		}
	}
	return path.Join("vouchers", segment(payerSubjectID), segment(paymentID), base)
}

func segment(s string) string {
	s = strings.Trim(strings.ReplaceAll(s, "/", "_"), ".")
	if s == "" {
		return "_"
	}
	return s
}

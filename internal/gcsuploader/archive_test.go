package gcsuploader

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/shopspring/decimal"
)

type mockStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockStorage) Upload(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	m.objects[bucketName+"/"+objectName] = data
	m.types[bucketName+"/"+objectName] = contentType
	return nil
}

func (m *mockStorage) Download(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	return m.objects[bucketName+"/"+objectName], nil
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		payer, payment, file, mediaType, want string
	}{
		{"s1", "p1", "receipt.jpg", voucher.MediaTypeJPEG, "vouchers/s1/p1/receipt.jpg"},
		{"s1", "p1", "scan.jpeg", voucher.MediaTypeJPEG, "vouchers/s1/p1/scan.jpeg"},
		{"s1", "p1", "scan.png", voucher.MediaTypeJPEG, "vouchers/s1/p1/scan.jpg"},
		{"s1", "p1", `C:\Users\me\transfer.pdf`, voucher.MediaTypePDF, "vouchers/s1/p1/transfer.pdf"},
		{"a/b", "..", "", voucher.MediaTypePNG, "vouchers/a_b/_/voucher.png"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.payer, tt.payment, tt.file, tt.mediaType); got != tt.want {
			t.Errorf("ObjectName(%q, %q, %q) = %q, want %q", tt.payer, tt.payment, tt.file, got, tt.want)
		}
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://archive/vouchers/s1/p1/a.jpg")
	if err != nil || bucket != "archive" || object != "vouchers/s1/p1/a.jpg" {
		t.Errorf("Unexpected parse: %q %q %v", bucket, object, err)
	}
	for _, bad := range []string{"http://x/y", "gs://bucket", "gs:///obj", "gs://bucket/"} {
		if _, _, err := ParseGCSURI(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
	if got := ExtractFilenameFromGCSURI("gs://b/vouchers/s1/p1/a.jpg"); got != "a.jpg" {
		t.Errorf("Expected a.jpg, got %s", got)
	}
}

func TestArchive_StoreAndFetch(t *testing.T) {
	storage := newMockStorage()
	archive := NewArchive(storage, "academy-vouchers")

	raw := []byte("jpeg payload")
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec, _ := domain.NewPaymentRecord("p1", "s1", decimal.NewFromInt(10), "", at, at)
	_ = rec.Submit(domain.MethodCard, &voucher.Attachment{
		EncodedImage:     voucher.Encode(voucher.MediaTypeJPEG, raw),
		FileName:         "scan.png",
		MediaType:        voucher.MediaTypeJPEG,
		OriginalByteSize: 100,
		FinalByteSize:    int64(len(raw)),
		WasCompressed:    true,
	}, at)

	uri, err := archive.Store(context.Background(), rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if uri != "gs://academy-vouchers/vouchers/s1/p1/scan.jpg" {
		t.Errorf("Unexpected URI %s", uri)
	}
	if storage.types["academy-vouchers/vouchers/s1/p1/scan.jpg"] != voucher.MediaTypeJPEG {
		t.Error("Expected content type to follow the stored media type")
	}

	if located, err := archive.Locate(rec); err != nil || located != uri {
		t.Errorf("Locate returned %q, %v", located, err)
	}

	data, err := archive.Fetch(context.Background(), uri)
	if err != nil || !bytes.Equal(data, raw) {
		t.Errorf("Fetch returned %q, %v", data, err)
	}
}

func TestArchive_StoreWithoutVoucher(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec, _ := domain.NewPaymentRecord("p1", "s1", decimal.NewFromInt(10), "", at, at)
	if _, err := NewArchive(newMockStorage(), "b").Store(context.Background(), rec); err == nil {
		t.Error("Expected error for record without voucher")
	}
	if _, err := NewArchive(newMockStorage(), "b").Locate(rec); err == nil {
		t.Error("Expected Locate error for record without voucher")
	}
}

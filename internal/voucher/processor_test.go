package voucher

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestProcessor(opts Options) *Processor {
	opts.Now = func() time.Time { return fixedNow }
	return NewProcessor(opts)
}

func TestProcess_SmallImageKeptAsIs(t *testing.T) {
	raw := gradientJPEG(t, 800, 600)
	p := newTestProcessor(Options{})

	att, err := p.Process(context.Background(), File{Name: "receipt.jpg", MediaType: "image/jpeg", Data: raw})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if att.WasCompressed {
		t.Error("Expected no compression")
	}
	if att.OriginalByteSize != int64(len(raw)) || att.FinalByteSize != att.OriginalByteSize {
		t.Errorf("Expected sizes %d/%d, got %d/%d", len(raw), len(raw), att.OriginalByteSize, att.FinalByteSize)
	}
	data, _ := att.EncodedImage.Decode()
	if !bytes.Equal(data, raw) {
		t.Error("Expected stored image to equal upload")
	}
	if att.Thumbnail == "" {
		t.Error("Expected thumbnail")
	}
	if att.FileName != "receipt.jpg" || att.MediaType != MediaTypeJPEG {
		t.Errorf("Unexpected metadata: %s %s", att.FileName, att.MediaType)
	}
	if !att.UploadDate.Equal(fixedNow) {
		t.Errorf("Expected upload date %v, got %v", fixedNow, att.UploadDate)
	}
}

func TestProcess_LargeImageCompressed(t *testing.T) {
	raw := blockNoisePNG(t, 2000, 1500, 4, 7)
	p := newTestProcessor(Options{})

	att, err := p.Process(context.Background(), File{Name: "scan.png", MediaType: "image/png", Size: int64(len(raw)), Data: raw})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !att.WasCompressed {
		t.Fatal("Expected compression")
	}
	if att.FinalByteSize > DefaultSizeBudget || att.FinalByteSize > att.OriginalByteSize {
		t.Errorf("Final size %d not within bounds (original %d)", att.FinalByteSize, att.OriginalByteSize)
	}
	if att.MediaType != MediaTypeJPEG {
		t.Errorf("Expected JPEG, got %s", att.MediaType)
	}
}

func TestProcess_ValidationErrorsUnchanged(t *testing.T) {
	p := newTestProcessor(Options{})

	tests := []struct {
		name string
		file File
		want error
	}{
		{"too large", File{Name: "big.jpg", MediaType: "image/jpeg", Size: 6 << 20, Data: []byte("x")}, ErrFileTooLarge},
		{"unsupported", File{Name: "a.txt", MediaType: "text/plain", Data: []byte("x")}, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := p.Process(context.Background(), tt.file)
			if att != nil {
				t.Error("Expected no attachment")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Kind != tt.want {
				t.Errorf("Expected validation error %v, got %v", tt.want, err)
			}
		})
	}
}

func TestProcess_PDFHasNoThumbnail(t *testing.T) {
	raw := []byte("%PDF-1.4 fake document")
	p := newTestProcessor(Options{})

	att, err := p.Process(context.Background(), File{Name: "transfer.pdf", MediaType: "application/pdf", Data: raw})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if att.Thumbnail != "" {
		t.Error("Expected no thumbnail for a document")
	}
	if att.MediaType != MediaTypePDF || att.WasCompressed {
		t.Errorf("Unexpected document attachment: %s compressed=%v", att.MediaType, att.WasCompressed)
	}
}

func TestProcess_CorruptImage(t *testing.T) {
	p := newTestProcessor(Options{})

	_, err := p.Process(context.Background(), File{Name: "x.png", MediaType: "image/png", Data: []byte("definitely not a png")})
	if !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("Expected ErrDecodeFailure, got %v", err)
	}
	if !IsProcessing(err) || IsValidation(err) {
		t.Error("Expected a processing error")
	}
}

func TestProcess_DecompressionBomb(t *testing.T) {
	p := newTestProcessor(Options{})
	f := File{Name: "scan.png", MediaType: "image/png", Data: pngHeader(16000, 16000)}
	if err := p.Validate(f); err != nil {
		t.Fatalf("Expected the header-only file to pass validation, got %v", err)
	}

	_, err := p.Process(context.Background(), f)
	if !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("Expected ErrDecodeFailure, got %v", err)
	}
}

func TestProcess_TimeoutWaitingForWorker(t *testing.T) {
	p := newTestProcessor(Options{Workers: 1, Timeout: 50 * time.Millisecond})
	if err := p.workers.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer p.workers.Release(1)

	_, err := p.Process(context.Background(), File{Name: "a.jpg", MediaType: "image/jpeg", Data: gradientJPEG(t, 32, 32)})
	if !errors.Is(err, ErrProcessingTimeout) {
		t.Errorf("Expected ErrProcessingTimeout, got %v", err)
	}
}

func TestProcess_Concurrent(t *testing.T) {
	p := newTestProcessor(Options{Workers: 2})
	raw := gradientJPEG(t, 320, 240)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(context.Background(), File{Name: "a.jpg", MediaType: "image/jpeg", Data: raw})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	}
}

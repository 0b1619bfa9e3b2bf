package voucher

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/dvloznov/academy-payments/internal/logger"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds one Process call, including time spent waiting for
// a worker slot.
const DefaultTimeout = 30 * time.Second

// Step is one stage of voucher processing.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is shared between the steps of one Process call.
type State struct {
	File       File
	MediaType  string
	Normalized Normalized
	Thumbnail  EncodedImage
}

// NormalizeStep bounds the voucher's size.
type NormalizeStep struct {
	Normalizer *Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	n, err := s.Normalizer.Normalize(ctx, state.MediaType, state.File.Data)
	if err != nil {
		return err
	}
	state.Normalized = n
	return nil
}

// ThumbnailStep renders the square preview. Documents get none.
type ThumbnailStep struct {
	Size int
}

func (s *ThumbnailStep) Execute(ctx context.Context, state *State) error {
	if state.MediaType == MediaTypePDF {
		return nil
	}
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	thumb, err := Thumbnail(state.Normalized.Image, s.Size)
	if err != nil {
		return err
	}
	state.Thumbnail = thumb
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("voucher step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Options configures a Processor. Zero values select defaults.
type Options struct {
	MaxFileSize   int64
	SizeBudget    int64
	MaxDimension  int
	ThumbnailSize int
	Timeout       time.Duration
	// Workers caps concurrent decode/encode work across all callers.
	Workers int
	Now     func() time.Time
}

// Processor turns an uploaded file into an Attachment: validate, then
// normalize and thumbnail on a bounded worker pool.
type Processor struct {
	validator *Validator
	pipeline  *Pipeline
	timeout   time.Duration
	workers   *semaphore.Weighted
	now       func() time.Time
}

// NewProcessor wires the validator and the processing pipeline.
func NewProcessor(opts Options) *Processor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{
		validator: NewValidator(opts.MaxFileSize),
		pipeline: NewPipeline(
			&NormalizeStep{Normalizer: NewNormalizer(opts.SizeBudget, opts.MaxDimension)},
			&ThumbnailStep{Size: opts.ThumbnailSize},
		),
		timeout: opts.Timeout,
		workers: semaphore.NewWeighted(int64(opts.Workers)),
		now:     opts.Now,
	}
}

// Validate runs only the metadata checks.
func (p *Processor) Validate(f File) error {
	return p.validator.Validate(f)
}

// Process validates f and, if accepted, produces its Attachment. Validation
// errors are returned unchanged; nothing is decoded for a refused file.
func (p *Processor) Process(ctx context.Context, f File) (*Attachment, error) {
	log := logger.FromContext(ctx)

	if err := p.validator.Validate(f); err != nil {
		log.Info().Err(err).Str("file_name", f.Name).Msg("Voucher refused")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.workers.Acquire(ctx, 1); err != nil {
		return nil, interrupted(ctx)
	}

	state := &State{File: f, MediaType: NormalizeMediaType(f.MediaType, f.Name)}
	done := make(chan error, 1)
	go func() {
		defer p.workers.Release(1)
		done <- p.pipeline.Execute(ctx, state)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Str("file_name", f.Name).Msg("Voucher processing failed")
			return nil, err
		}
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Str("file_name", f.Name).Msg("Voucher processing abandoned")
		return nil, interrupted(ctx)
	}

	att := &Attachment{
		EncodedImage:     state.Normalized.Image,
		Thumbnail:        state.Thumbnail,
		FileName:         f.Name,
		MediaType:        state.Normalized.Image.MediaType(),
		OriginalByteSize: int64(len(f.Data)),
		FinalByteSize:    state.Normalized.Image.ByteSize(),
		WasCompressed:    state.Normalized.Compressed,
		UploadDate:       p.now(),
	}
	log.Info().
		Str("file_name", att.FileName).
		Str("media_type", att.MediaType).
		Int64("original_bytes", att.OriginalByteSize).
		Int64("final_bytes", att.FinalByteSize).
		Bool("compressed", att.WasCompressed).
		Int("quality", state.Normalized.Quality).
		Msg("Voucher processed")
	return att, nil
}

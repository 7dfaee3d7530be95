package captioning

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBadManifest   = errors.New("model manifest is missing or malformed")
	ErrUnknownFamily = errors.New("unknown model family")
)

// DecodeParams are the generation settings handed to a captioner at load
// time. They never change for the lifetime of the process, so identical
// input against identical weights always yields identical output.
type DecodeParams struct {
	BeamSize     int
	MaxNewTokens int
}

// CaptionResult ties a generated caption back to the position of its
// input within a batch.
type CaptionResult struct {
	Caption     string `json:"caption"`
	SourceIndex int    `json:"source_index"`
}

// Captioner wraps loaded model weights and the preprocessor. It is
// constructed exactly once at startup and holds no per-request state, so
// concurrent Caption and CaptionBatch calls are safe without locking.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
	CaptionBatch(ctx context.Context, images [][]byte) ([]CaptionResult, error)

	Family() string
	Fingerprint() string
}

// InputError marks a failure caused by the request payload rather than
// the model. The API layer maps it to a client error.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input image: %v", e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// BatchItemError reports the lowest input position that made a batch
// fail. Batches fail atomically: no partial results are returned.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

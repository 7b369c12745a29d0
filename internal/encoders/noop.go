package encoders

import (
	"context"
	"fmt"
	"io"
	"os"
)

// NoopEncoder copies input to output unchanged. Exists for smoke tests
// and end-to-end pipeline verification without a real transcoder.
type NoopEncoder struct{}

func NewNoopEncoder() *NoopEncoder {
	return &NoopEncoder{}
}

func (e *NoopEncoder) Encode(ctx context.Context, req Request) error {
	in, err := os.Open(req.InputPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy input to output: %w", err)
	}
	return nil
}

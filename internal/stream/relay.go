package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

const chunkSize = 32 * 1024

// Source is a running command. Stderr may be nil when the command's output
// is already combined.
type Source interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the command exits and returns its exit code. A
	// non-nil error means the exit code could not be determined.
	Wait() (int, error)
}

// Relay forwards chunks from src to op until stdout and stderr are drained,
// then finishes op with the exit code and returns it. If ctx is cancelled,
// remaining output is discarded, Done is left to whoever cancelled and ok is
// false. The caller is expected to stop the command when cancelling,
// otherwise Relay blocks until it exits on its own.
func Relay(ctx context.Context, op *Operation, src Source) (code int, ok bool) {
	var g errgroup.Group
	g.Go(func() error { return pump(ctx, op, src.Stdout()) })
	if stderr := src.Stderr(); stderr != nil {
		g.Go(func() error { return pump(ctx, op, stderr) })
	}
	readErr := g.Wait()

	code, err := src.Wait()
	if ctx.Err() != nil {
		return 0, false
	}
	if err == nil && readErr != nil {
		err = readErr
	}
	if err != nil {
		op.Fail(fmt.Sprintf("Command error: %v\n", err))
		return 1, true
	}
	op.Finish(code)
	return code, true
}

func pump(ctx context.Context, op *Operation, r io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && ctx.Err() == nil {
			op.Output(string(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read output: %w", err)
		}
	}
}

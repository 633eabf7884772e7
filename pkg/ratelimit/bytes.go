package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// ByteLimiter bounds aggregate transferred bytes per second. A single
// instance is shared by all download workers so the cap applies to the run,
// not to each connection.
type ByteLimiter struct {
	limiter *rate.Limiter
	chunk   int
}

// NewByteLimiter creates a limiter permitting bytesPerSec of throughput.
// A zero or negative rate disables limiting and returns nil; a nil
// *ByteLimiter is safe to use everywhere below.
func NewByteLimiter(bytesPerSec int64) *ByteLimiter {
	if bytesPerSec <= 0 {
		return nil
	}
	// Burst equal to one read chunk paces transfers from the very first
	// read, so any rolling one-second window admits at most the configured
	// rate plus one in-flight chunk.
	chunk := int(bytesPerSec) / 4
	if chunk < 1 {
		chunk = 1
	}
	if chunk > 32*1024 {
		chunk = 32 * 1024
	}
	return &ByteLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), chunk),
		chunk:   chunk,
	}
}

// WaitN blocks until n bytes may be transferred. Requests larger than the
// burst are split so any n is accepted.
func (b *ByteLimiter) WaitN(ctx context.Context, n int) error {
	if b == nil || n <= 0 {
		return nil
	}
	for n > 0 {
		step := n
		if step > b.limiter.Burst() {
			step = b.limiter.Burst()
		}
		if err := b.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// ChunkSize returns the read size workers should use so that throttling
// stays responsive. Falls back to 8KiB when unlimited.
func (b *ByteLimiter) ChunkSize() int {
	if b == nil {
		return 8 * 1024
	}
	return b.chunk
}

type limitedReader struct {
	r   io.Reader
	b   *ByteLimiter
	ctx context.Context
}

// Reader wraps r so reads are throttled by the limiter. With a nil limiter
// the reader is returned unchanged.
func (b *ByteLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if b == nil {
		return r
	}
	return &limitedReader{r: r, b: b, ctx: ctx}
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if max := lr.b.ChunkSize(); len(p) > max {
		p = p[:max]
	}
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.b.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

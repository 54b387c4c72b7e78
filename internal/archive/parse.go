package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// readChunk caps a single read in ParseReader.
const readChunk = 256 << 10

// Parse decodes a complete archive held in memory.
func Parse(b []byte, opts ...ReadOption) (*Archive, error) {
	d := NewDecoder(opts...)
	if err := d.Feed(b); err != nil {
		return nil, err
	}
	return d.Archive()
}

// ParseReader decodes an archive from r. Each read asks for at most the bytes
// the decoder needs to finish its current element, so nothing past the
// trailer is consumed. A stream that ends early fails with ErrCorruptArchive.
func ParseReader(ctx context.Context, r io.Reader, opts ...ReadOption) (*Archive, error) {
	d := NewDecoder(opts...)
	buf := make([]byte, readChunk)
	for {
		need := d.Need()
		if need == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := io.ReadFull(r, buf[:min(need, len(buf))])
		if ferr := d.Feed(buf[:n]); ferr != nil {
			return nil, ferr
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: truncated while %s: %w", ErrCorruptArchive, d.State(), io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("reading archive: %w", err)
		}
	}
	return d.Archive()
}

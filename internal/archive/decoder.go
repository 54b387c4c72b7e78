package archive

import (
	"fmt"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

// initialBufSize caps the up-front allocation for an element so a forged
// length cannot force a large allocation before its bytes arrive.
const initialBufSize = 64 << 10

// State is the position of a Decoder in the archive layout.
type State int

const (
	AwaitingHeader State = iota
	AwaitingRecordHeader
	AwaitingBody
	AwaitingTrailer
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "awaiting-header"
	case AwaitingRecordHeader:
		return "awaiting-record-header"
	case AwaitingBody:
		return "awaiting-body"
	case AwaitingTrailer:
		return "awaiting-trailer"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Decoder is an incremental archive reader. Bytes are pushed with Feed in
// pieces of any size; Need reports how many more bytes complete the element
// currently being decoded. A Decoder is single-use and not safe for
// concurrent use.
type Decoder struct {
	limits Limits
	state  State
	err    error

	// buf accumulates the current element until it reaches want bytes.
	buf  []byte
	want int

	hash      *xxh3.Hasher
	remaining uint32
	record    recordHeader
	modules   []Module
	seen      map[string]bool
}

// NewDecoder returns a Decoder awaiting the fixed header.
func NewDecoder(opts ...ReadOption) *Decoder {
	cfg := newReadConfig(opts)
	return &Decoder{
		limits: cfg.limits,
		state:  AwaitingHeader,
		want:   fixedHeaderSize,
		hash:   xxh3.New(),
		seen:   make(map[string]bool),
	}
}

// State returns the current decoder state.
func (d *Decoder) State() State {
	return d.state
}

// Need returns the number of bytes that would complete the current element.
// It is 0 once the decoder is Done or Failed.
func (d *Decoder) Need() int {
	if d.state == Done || d.state == Failed {
		return 0
	}
	return d.want - len(d.buf)
}

// Feed consumes p. Bytes past the end of the archive are an error.
func (d *Decoder) Feed(p []byte) error {
	for len(p) > 0 {
		switch d.state {
		case Failed:
			return d.err
		case Done:
			return d.fail(fmt.Errorf("%w: %d trailing bytes", ErrCorruptArchive, len(p)))
		}

		n := min(d.want-len(d.buf), len(p))
		if d.buf == nil {
			d.buf = make([]byte, 0, min(d.want, initialBufSize))
		}
		d.buf = append(d.buf, p[:n]...)
		p = p[n:]

		if len(d.buf) < d.want {
			return nil
		}
		elem := d.buf
		d.buf = nil
		if err := d.step(elem); err != nil {
			return d.fail(err)
		}
	}
	if d.state == Failed {
		return d.err
	}
	return nil
}

// Archive returns the decoded archive. It fails unless the decoder is Done.
func (d *Decoder) Archive() (*Archive, error) {
	switch d.state {
	case Done:
		return newArchive(d.modules), nil
	case Failed:
		return nil, d.err
	default:
		return nil, fmt.Errorf("%w: truncated while %s", ErrCorruptArchive, d.state)
	}
}

func (d *Decoder) fail(err error) error {
	d.state = Failed
	d.err = err
	d.buf = nil
	d.modules = nil
	return err
}

// step handles one complete element and moves to the next state.
func (d *Decoder) step(elem []byte) error {
	switch d.state {
	case AwaitingHeader:
		_, _ = d.hash.Write(elem)
		h := decodeFixedHeader(elem)
		if err := validateFixedHeader(h, d.limits); err != nil {
			return err
		}
		d.remaining = h.ModuleCount
		d.modules = make([]Module, 0, h.ModuleCount)
		d.nextRecord()

	case AwaitingRecordHeader:
		_, _ = d.hash.Write(elem)
		rh := decodeRecordHeader(elem)
		if err := validateRecordHeader(rh, d.limits); err != nil {
			return err
		}
		d.record = rh
		d.state = AwaitingBody
		d.want = rh.bodyLen()

	case AwaitingBody:
		_, _ = d.hash.Write(elem)
		m, err := d.decodeBody(elem)
		if err != nil {
			return err
		}
		d.modules = append(d.modules, m)
		d.remaining--
		d.nextRecord()

	case AwaitingTrailer:
		t := decodeTrailer(elem)
		if t.Marker != trailerMarker || t.Reserved != 0 {
			return fmt.Errorf("%w: bad trailer", ErrCorruptArchive)
		}
		if sum := d.hash.Sum64(); sum != t.Checksum {
			return fmt.Errorf("%w: checksum mismatch: got %016x, want %016x", ErrCorruptArchive, sum, t.Checksum)
		}
		d.state = Done
		d.want = 0
	}
	return nil
}

func (d *Decoder) nextRecord() {
	if d.remaining == 0 {
		d.state = AwaitingTrailer
		d.want = trailerSize
		return
	}
	d.state = AwaitingRecordHeader
	d.want = recordHeaderSize
}

func (d *Decoder) decodeBody(body []byte) (Module, error) {
	rh := d.record
	off := 0
	take := func(n uint32) []byte {
		b := body[off : off+int(n)]
		off += int(n)
		return b
	}

	spec := take(rh.SpecLen)
	headers := take(rh.HeadersLen)
	content := take(rh.ContentLen)
	sourceMap := take(rh.SourceMapLen)

	if !utf8.Valid(spec) {
		return Module{}, fmt.Errorf("%w: specifier is not valid UTF-8", ErrCorruptArchive)
	}
	m := Module{Specifier: string(spec)}
	if len(content) > 0 {
		m.Content = content
	}
	if d.seen[m.Specifier] {
		return Module{}, fmt.Errorf("%w: duplicate specifier %s", ErrCorruptArchive, m.Specifier)
	}
	d.seen[m.Specifier] = true

	hs, err := decodeHeaders(headers)
	if err != nil {
		return Module{}, fmt.Errorf("%s: %w", m.Specifier, err)
	}
	m.Headers = hs
	if len(sourceMap) > 0 {
		m.SourceMap = sourceMap
	}
	return m, nil
}

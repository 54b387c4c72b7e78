package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModules() []Module {
	return []Module{
		{
			Specifier: "file:///main.ts",
			Headers:   []Header{{Key: "content-type", Value: "application/typescript"}},
			Content:   []byte(`import { a } from "./a.ts";` + "\n"),
		},
		{
			Specifier: "https://deno.land/std/path/mod.ts",
			Headers: []Header{
				{Key: "x-zeta", Value: "last"},
				{Key: "content-type", Value: "application/typescript"},
				{Key: "etag", Value: `"abc"`},
			},
			Content: []byte("export const sep = '/';\n"),
		},
		{
			Specifier: "file:///a.ts",
			Headers:   []Header{{Key: "content-type", Value: "application/javascript"}},
			Content:   []byte("export const a = 1;\n"),
			SourceMap: []byte(`{"version":3,"sources":["a.ts"],"sourcesContent":["export const a: number = 1;\n"],"names":[],"mappings":"AAAA"}`),
		},
		{
			Specifier: "file:///empty.ts",
			Headers:   []Header{{Key: "content-type", Value: "application/typescript"}},
		},
	}
}

func mustMarshal(t *testing.T, mods []Module) []byte {
	t.Helper()
	data, err := Marshal(mods)
	require.NoError(t, err)
	return data
}

func assertSameModules(t *testing.T, want []Module, a *Archive) {
	t.Helper()
	require.Equal(t, len(want), a.Len())
	for _, w := range want {
		got, ok := a.Module(w.Specifier)
		require.True(t, ok, w.Specifier)
		assert.Equal(t, w.Headers, got.Headers, w.Specifier)
		assert.Equal(t, string(w.Content), string(got.Content), w.Specifier)
		assert.Equal(t, string(w.SourceMap), string(got.SourceMap), w.Specifier)
	}
}

func TestRoundTrip(t *testing.T) {
	mods := sampleModules()
	a, err := Parse(mustMarshal(t, mods))
	require.NoError(t, err)
	assertSameModules(t, mods, a)

	// Records are written sorted by specifier.
	assert.Equal(t, []string{
		"file:///a.ts",
		"file:///empty.ts",
		"file:///main.ts",
		"https://deno.land/std/path/mod.ts",
	}, a.Specifiers())
}

func TestRoundTrip_Empty(t *testing.T) {
	a, err := Parse(mustMarshal(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Len())
}

func TestMarshal_Deterministic(t *testing.T) {
	mods := sampleModules()
	first := mustMarshal(t, mods)
	mods[0], mods[3] = mods[3], mods[0]
	assert.Equal(t, first, mustMarshal(t, mods))
}

func TestMarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		mods []Module
	}{
		{"empty specifier", []Module{{Specifier: ""}}},
		{"duplicate", []Module{{Specifier: "file:///a.ts"}, {Specifier: "file:///a.ts"}}},
		{"empty header key", []Module{{Specifier: "file:///a.ts", Headers: []Header{{Key: "", Value: "x"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.mods)
			require.ErrorIs(t, err, ErrInvalidModule)
		})
	}

	_, err := Marshal([]Module{{Specifier: "file:///a.ts", Content: make([]byte, 10)}},
		WithWriteLimits(Limits{MaxContentLen: 4}))
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestArchiveQueries(t *testing.T) {
	a, err := Parse(mustMarshal(t, sampleModules()))
	require.NoError(t, err)

	assert.Equal(t, []string{"file:///a.ts", "file:///empty.ts", "file:///main.ts"}, a.LocalSpecifiers())

	src, err := a.ModuleSource("file:///a.ts")
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;\n", src)

	_, err = a.ModuleSource("file:///nope.ts")
	require.ErrorIs(t, err, ErrSpecifierNotFound)

	sm, ok := a.ModuleSourceMap("file:///a.ts")
	require.True(t, ok)
	assert.Contains(t, string(sm), "sourcesContent")

	_, ok = a.ModuleSourceMap("file:///main.ts")
	assert.False(t, ok)
	_, ok = a.ModuleSourceMap("file:///nope.ts")
	assert.False(t, ok)

	m, ok := a.Module("https://deno.land/std/path/mod.ts")
	require.True(t, ok)
	etag, ok := m.Header("etag")
	require.True(t, ok)
	assert.Equal(t, `"abc"`, etag)
}

func TestParseReader_MatchesParse(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	want, err := Parse(data)
	require.NoError(t, err)

	readers := map[string]func() *bytes.Reader{
		"whole": func() *bytes.Reader { return bytes.NewReader(data) },
	}
	for name, mk := range readers {
		t.Run(name, func(t *testing.T) {
			got, err := ParseReader(context.Background(), mk())
			require.NoError(t, err)
			assert.Equal(t, want.Specifiers(), got.Specifiers())
			assertSameModules(t, sampleModules(), got)
		})
	}

	t.Run("one byte", func(t *testing.T) {
		got, err := ParseReader(context.Background(), iotest.OneByteReader(bytes.NewReader(data)))
		require.NoError(t, err)
		assertSameModules(t, sampleModules(), got)
	})
	t.Run("half reader", func(t *testing.T) {
		got, err := ParseReader(context.Background(), iotest.HalfReader(bytes.NewReader(data)))
		require.NoError(t, err)
		assertSameModules(t, sampleModules(), got)
	})
}

func TestParseReader_StopsAtTrailer(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	r := bytes.NewReader(append(append([]byte(nil), data...), "next"...))

	_, err := ParseReader(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len(), "bytes past the trailer must not be consumed")
}

func TestParseReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParseReader(ctx, bytes.NewReader(mustMarshal(t, sampleModules())))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecoder_NeedIsBounded(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	d := NewDecoder()
	for i := 0; i < len(data); i++ {
		need := d.Need()
		require.Positive(t, need, "offset %d", i)
		require.LessOrEqual(t, need, len(data)-i, "decoder asked past the end at offset %d", i)
		require.NoError(t, d.Feed(data[i:i+1]))
	}
	assert.Equal(t, Done, d.State())
	assert.Equal(t, 0, d.Need())
}

func TestDecoder_ArbitraryChunks(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	for _, size := range []int{1, 2, 3, 7, 23, 24, 25, 100, len(data)} {
		d := NewDecoder()
		for off := 0; off < len(data); off += size {
			end := min(off+size, len(data))
			require.NoError(t, d.Feed(data[off:end]), "chunk size %d", size)
		}
		a, err := d.Archive()
		require.NoError(t, err, "chunk size %d", size)
		assertSameModules(t, sampleModules(), a)
	}
}

func TestDecoder_States(t *testing.T) {
	data := mustMarshal(t, sampleModules()[:1])
	d := NewDecoder()
	assert.Equal(t, AwaitingHeader, d.State())
	assert.Equal(t, fixedHeaderSize, d.Need())

	require.NoError(t, d.Feed(data[:fixedHeaderSize]))
	assert.Equal(t, AwaitingRecordHeader, d.State())
	assert.Equal(t, recordHeaderSize, d.Need())

	require.NoError(t, d.Feed(data[fixedHeaderSize:fixedHeaderSize+recordHeaderSize]))
	assert.Equal(t, AwaitingBody, d.State())

	require.NoError(t, d.Feed(data[fixedHeaderSize+recordHeaderSize:len(data)-trailerSize]))
	assert.Equal(t, AwaitingTrailer, d.State())
	assert.Equal(t, trailerSize, d.Need())

	_, err := d.Archive()
	require.ErrorIs(t, err, ErrCorruptArchive)

	require.NoError(t, d.Feed(data[len(data)-trailerSize:]))
	assert.Equal(t, Done, d.State())
}

func TestCorrupt_Truncated(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	for n := 0; n < len(data); n++ {
		_, err := Parse(data[:n])
		require.ErrorIs(t, err, ErrCorruptArchive, "prefix length %d", n)

		_, err = ParseReader(context.Background(), bytes.NewReader(data[:n]))
		require.ErrorIs(t, err, ErrCorruptArchive, "reader prefix length %d", n)
	}
}

func TestCorrupt_TrailingBytes(t *testing.T) {
	data := append(mustMarshal(t, sampleModules()), 0)
	_, err := Parse(data)
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestCorrupt_Mutations(t *testing.T) {
	base := mustMarshal(t, sampleModules())
	firstRecord := fixedHeaderSize

	tests := []struct {
		name   string
		mutate func(b []byte)
	}{
		{"magic", func(b []byte) { b[0] = 'X' }},
		{"version", func(b []byte) { binary.LittleEndian.PutUint16(b[8:10], 2) }},
		{"header flags", func(b []byte) { binary.LittleEndian.PutUint16(b[10:12], 1) }},
		{"header size", func(b []byte) { binary.LittleEndian.PutUint32(b[12:16], 32) }},
		{"header reserved", func(b []byte) { b[20] = 1 }},
		{"module count", func(b []byte) { binary.LittleEndian.PutUint32(b[16:20], 3) }},
		{"record marker", func(b []byte) { b[firstRecord] ^= 0xff }},
		{"record flags", func(b []byte) { binary.LittleEndian.PutUint16(b[firstRecord+2:firstRecord+4], 4) }},
		{"record reserved", func(b []byte) { b[firstRecord+20] = 1 }},
		{"zero spec length", func(b []byte) { binary.LittleEndian.PutUint32(b[firstRecord+4:firstRecord+8], 0) }},
		{"huge content length", func(b []byte) { binary.LittleEndian.PutUint32(b[firstRecord+12:firstRecord+16], 0xffffffff) }},
		{"content byte", func(b []byte) { b[len(b)-trailerSize-1] ^= 0x01 }},
		{"trailer marker", func(b []byte) { b[len(b)-trailerSize] ^= 0xff }},
		{"checksum", func(b []byte) { b[len(b)-1] ^= 0x01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), base...)
			tt.mutate(b)
			_, err := Parse(b)
			require.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}

func TestCorrupt_SourceMapFlagMismatch(t *testing.T) {
	data := mustMarshal(t, []Module{{Specifier: "file:///a.ts", Content: []byte("x")}})
	binary.LittleEndian.PutUint16(data[fixedHeaderSize+2:fixedHeaderSize+4], recordFlagSourceMap)
	_, err := Parse(data)
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestCorrupt_HeaderBlockOverrun(t *testing.T) {
	data := mustMarshal(t, []Module{{
		Specifier: "file:///a.ts",
		Headers:   []Header{{Key: "content-type", Value: "text/plain"}},
	}})
	// The key length prefix sits right after the specifier.
	off := fixedHeaderSize + recordHeaderSize + len("file:///a.ts")
	binary.LittleEndian.PutUint32(data[off:off+4], 1000)
	_, err := Parse(data)
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestDecoder_FailedIsSticky(t *testing.T) {
	d := NewDecoder()
	bad := make([]byte, fixedHeaderSize)
	require.ErrorIs(t, d.Feed(bad), ErrCorruptArchive)
	assert.Equal(t, Failed, d.State())
	assert.Equal(t, 0, d.Need())
	require.ErrorIs(t, d.Feed([]byte{1}), ErrCorruptArchive)
	_, err := d.Archive()
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestReadLimits(t *testing.T) {
	data := mustMarshal(t, sampleModules())
	_, err := Parse(data, WithReadLimits(Limits{MaxModules: 2}))
	require.ErrorIs(t, err, ErrCorruptArchive)

	_, err = Parse(data, WithReadLimits(Limits{MaxSpecifierLen: 8}))
	require.ErrorIs(t, err, ErrCorruptArchive)
}

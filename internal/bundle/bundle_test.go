package bundle

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/sourcemap"
	"github.com/dejo1307/edgezip/internal/specifier"
)

func sampleFiles() []SourceFile {
	return []SourceFile{
		{Name: "index.ts", Content: []byte("import { add } from './lib/math.ts';\nDeno.serve(() => new Response(String(add(1, 2))));\n"), MediaType: "application/typescript"},
		{Name: "lib/math.ts", Content: []byte("export const add = (a: number, b: number) => a + b;\n"), MediaType: "application/typescript"},
		{Name: "data/config.json", Content: []byte(`{"name": "fn"}`), MediaType: "application/json"},
		{Name: "README with spaces.md", Content: []byte("# héllo\n"), MediaType: "text/markdown"},
		{Name: "empty.ts", Content: nil, MediaType: "application/typescript"},
	}
}

func byName(files []SourceFile) map[string]SourceFile {
	m := make(map[string]SourceFile, len(files))
	for _, f := range files {
		m[f.Name] = f
	}
	return m
}

func TestRoundTrip_NoSourceMap(t *testing.T) {
	in := sampleFiles()
	res, err := Files(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, len(in), res.Modules)

	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	got := byName(out)
	for _, f := range in {
		g, ok := got[f.Name]
		require.True(t, ok, f.Name)
		assert.Equal(t, string(f.Content), string(g.Content), f.Name)
		assert.Equal(t, sourcemap.MediaTypeText, g.MediaType, f.Name)
	}
}

func TestRoundTrip_DeclaredMediaType(t *testing.T) {
	in := sampleFiles()
	res, err := Files(context.Background(), in)
	require.NoError(t, err)

	out, err := Extract(context.Background(), res.Archive, WithDeclaredMediaType(true))
	require.NoError(t, err)
	got := byName(out)
	for _, f := range in {
		assert.Equal(t, f.MediaType, got[f.Name].MediaType, f.Name)
	}
}

func TestFiles_DefaultMediaTypeFromExtension(t *testing.T) {
	in := []SourceFile{
		{Name: "main.ts", Content: []byte("import data from './data.json';\n")},
		{Name: "data.json", Content: []byte(`{"import": "./not-a-module.ts"}`)},
		{Name: "notes.txt", Content: []byte("import './nothing.ts';\n")},
	}
	res, err := Files(context.Background(), in)
	require.NoError(t, err)

	a, err := archive.Parse(res.Archive)
	require.NoError(t, err)
	want := map[string]string{
		"file:///main.ts":   sourcemap.MediaTypeTypeScript,
		"file:///data.json": "application/json",
		"file:///notes.txt": sourcemap.MediaTypeText,
	}
	for spec, mt := range want {
		m, ok := a.Module(spec)
		require.True(t, ok, spec)
		ct, _ := m.Header("content-type")
		assert.Equal(t, mt, ct, spec)
	}
}

func TestMediaTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"a.ts", "application/typescript", true},
		{"dir/B.TSX", "text/tsx", true},
		{"x.mjs", "application/javascript", true},
		{"c.json", "application/json", true},
		{"README.md", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		got, ok := MediaTypeFor(tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestRoundTrip_Prefix(t *testing.T) {
	in := sampleFiles()
	res, err := Files(context.Background(), in, WithPrefix("/srv/fn"))
	require.NoError(t, err)

	a, err := archive.Parse(res.Archive)
	require.NoError(t, err)
	assert.Contains(t, a.Specifiers(), "file:///srv/fn/lib/math.ts")

	out, err := Extract(context.Background(), res.Archive, WithPrefix("/srv/fn"))
	require.NoError(t, err)
	assert.Contains(t, byName(out), "lib/math.ts")
}

func TestRoundTrip_WithSourceMap(t *testing.T) {
	original := "export const n: number = 42;\n"
	sm := fmt.Sprintf(`{"version":3,"sources":["n.ts"],"sourcesContent":[%q],"names":[],"mappings":"AAAA"}`, original)

	res, err := Files(context.Background(), []SourceFile{{
		Name:      "n.js",
		Content:   []byte("export const n = 42;\n"),
		MediaType: "application/javascript",
		SourceMap: []byte(sm),
	}})
	require.NoError(t, err)

	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, original, string(out[0].Content))
	assert.Equal(t, sourcemap.MediaTypeTypeScript, out[0].MediaType)
}

func TestRoundTrip_InlineSourceMapKeptVerbatim(t *testing.T) {
	sm := `{"version":3,"sources":["v.ts"],"sourcesContent":["const secret: number = 1;"],"names":[],"mappings":"AAAA"}`
	js := "export const n = 42;\n//# sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte(sm)) + "\n"

	res, err := Files(context.Background(), []SourceFile{{Name: "vendor.js", Content: []byte(js), MediaType: "application/javascript"}})
	require.NoError(t, err)

	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, js, string(out[0].Content))
	assert.Equal(t, sourcemap.MediaTypeText, out[0].MediaType)
}

func TestRoundTrip_Transpile(t *testing.T) {
	in := []SourceFile{
		{Name: "main.ts", Content: []byte("import { one } from './t.ts';\nconst x: number = one;\nexport default x;\n"), MediaType: "application/typescript"},
		{Name: "t.ts", Content: []byte("export const one: number = 1;\n"), MediaType: "application/typescript"},
	}
	res, err := Files(context.Background(), in, WithBuildOptions(archive.WithTranspile(true)))
	require.NoError(t, err)

	a, err := archive.Parse(res.Archive)
	require.NoError(t, err)
	src, err := a.ModuleSource("file:///main.ts")
	require.NoError(t, err)
	assert.NotContains(t, src, ": number")

	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	got := byName(out)
	for _, f := range in {
		assert.Equal(t, string(f.Content), string(got[f.Name].Content))
		assert.Equal(t, sourcemap.MediaTypeTypeScript, got[f.Name].MediaType)
	}
}

func TestExtract_MalformedSourceMapDegrades(t *testing.T) {
	data, err := archive.Marshal([]archive.Module{{
		Specifier: "file:///a.js",
		Headers:   []archive.Header{{Key: "content-type", Value: "application/javascript"}},
		Content:   []byte("export const a = 1;\n"),
		SourceMap: []byte(`{"version":"three"}`),
	}})
	require.NoError(t, err)

	out, err := Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "export const a = 1;\n", string(out[0].Content))
	assert.Equal(t, sourcemap.MediaTypeText, out[0].MediaType)
}

func TestDependencyExclusion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/typescript")
		fmt.Fprint(w, "export const remote = true;\n")
	}))
	defer srv.Close()

	in := []SourceFile{{
		Name:      "index.ts",
		Content:   []byte(fmt.Sprintf("import { remote } from '%s/dep.ts';\nconsole.log(remote);\n", srv.URL)),
		MediaType: "application/typescript",
	}}
	res, err := Files(context.Background(), in, WithRemote(loader.NewRemote()))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Modules)

	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "index.ts", out[0].Name)
}

func TestFetchFailurePropagation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	in := []SourceFile{{
		Name:    "index.ts",
		Content: []byte(fmt.Sprintf("import '%s/dep.ts';\n", srv.URL)),
	}}
	res, err := Files(context.Background(), in, WithRemote(loader.NewRemote()))
	require.Nil(t, res)
	var fe *loader.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.Status)
}

func TestRemoteDisabledByDefault(t *testing.T) {
	in := []SourceFile{{Name: "index.ts", Content: []byte("import 'https://deno.land/x/mod.ts';\n")}}
	_, err := Files(context.Background(), in)
	require.ErrorIs(t, err, specifier.ErrUnsupportedScheme)
}

func TestSchemeRejection(t *testing.T) {
	_, err := archive.Build(context.Background(), []string{"ftp://example.com/a.ts"}, loader.New(nil, nil))
	require.ErrorIs(t, err, specifier.ErrUnsupportedScheme)
}

func TestEntrypoints(t *testing.T) {
	in := []SourceFile{
		{Name: "main.ts", Content: []byte("import './used.ts';\n")},
		{Name: "used.ts", Content: []byte("export {};\n")},
		{Name: "unused.ts", Content: []byte("export {};\n")},
	}
	res, err := Files(context.Background(), in, WithEntrypoints("main.ts"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Modules)

	_, err = Files(context.Background(), in, WithEntrypoints("nope.ts"))
	require.ErrorIs(t, err, loader.ErrFileNotFound)
}

func TestFiles_Invalid(t *testing.T) {
	_, err := Files(context.Background(), []SourceFile{{Name: "  "}})
	require.ErrorIs(t, err, specifier.ErrInvalidSpecifier)

	_, err = Files(context.Background(), []SourceFile{{Name: "a.ts"}, {Name: "./a.ts"}})
	require.ErrorIs(t, err, specifier.ErrInvalidSpecifier)

	_, err = Files(context.Background(), []SourceFile{{Name: "a.ts"}, {Name: "a.ts"}})
	require.ErrorIs(t, err, specifier.ErrInvalidSpecifier)

	_, err = Files(context.Background(), nil)
	require.ErrorIs(t, err, archive.ErrNothingToBuild)
}

func TestExtract_Corrupt(t *testing.T) {
	res, err := Files(context.Background(), sampleFiles())
	require.NoError(t, err)

	truncated := res.Archive[:len(res.Archive)/2]
	out, err := Extract(context.Background(), truncated)
	require.ErrorIs(t, err, archive.ErrCorruptArchive)
	assert.Nil(t, out)

	garbled := bytes.Clone(res.Archive)
	garbled[len(garbled)/2] ^= 0xff
	_, err = Extract(context.Background(), garbled)
	require.ErrorIs(t, err, archive.ErrCorruptArchive)

	_, err = Extract(context.Background(), nil)
	require.ErrorIs(t, err, archive.ErrCorruptArchive)

	_, err = ExtractReader(context.Background(), iotest.OneByteReader(bytes.NewReader(truncated)))
	require.ErrorIs(t, err, archive.ErrCorruptArchive)
}

func TestExtractReader(t *testing.T) {
	res, err := Files(context.Background(), sampleFiles())
	require.NoError(t, err)

	want, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	got, err := ExtractReader(context.Background(), iotest.HalfReader(bytes.NewReader(res.Archive)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExtract_SortedOutput(t *testing.T) {
	res, err := Files(context.Background(), sampleFiles())
	require.NoError(t, err)
	out, err := Extract(context.Background(), res.Archive)
	require.NoError(t, err)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].Name, out[i].Name)
	}
}

func TestExtract_DeploymentID(t *testing.T) {
	in := []SourceFile{
		{Name: "source/index.ts", Content: []byte("export {};\n")},
		{Name: "source/lib/a.ts", Content: []byte("export {};\n")},
	}
	res, err := Files(context.Background(), in, WithPrefix("/tmp/user_fn_D"))
	require.NoError(t, err)

	out, err := Extract(context.Background(), res.Archive, WithPrefix("/"), WithDeploymentID("D"))
	require.NoError(t, err)
	names := []string{out[0].Name, out[1].Name}
	assert.ElementsMatch(t, []string{"index.ts", "lib/a.ts"}, names)
}

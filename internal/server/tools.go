package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/bundle"
	"github.com/dejo1307/edgezip/internal/graph"
	"github.com/dejo1307/edgezip/internal/store"
)

type fileArg struct {
	Name      string `json:"name" jsonschema:"File name relative to the prefix, e.g. main.ts"`
	Content   string `json:"content" jsonschema:"File text"`
	MediaType string `json:"media_type,omitempty" jsonschema:"Media type of the file. Defaults from the file extension"`
	SourceMap string `json:"source_map,omitempty" jsonschema:"Source map JSON for content. Extraction returns its first sourcesContent entry"`
}

// bundleFunctionArgs are the arguments for the bundle_function tool.
type bundleFunctionArgs struct {
	Files       []fileArg `json:"files" jsonschema:"Source files of the function"`
	Entrypoints []string  `json:"entrypoints,omitempty" jsonschema:"Names of the files to build from. Defaults to every file"`
	Prefix      string    `json:"prefix,omitempty" jsonschema:"Logical root the names are relative to. Defaults to the configured prefix"`
	Transpile   *bool     `json:"transpile,omitempty" jsonschema:"Transpile TypeScript and JSX to JavaScript with source maps"`
}

// extractFunctionArgs are the arguments for the extract_function tool.
type extractFunctionArgs struct {
	ArchiveID    string `json:"archive_id" jsonschema:"Id returned by bundle_function"`
	DeploymentID string `json:"deployment_id,omitempty" jsonschema:"Deployment id whose root is stripped from extracted names"`
	Prefix       string `json:"prefix,omitempty" jsonschema:"Logical root the archive was bundled under. Defaults to the configured prefix"`
	Offset       int    `json:"offset,omitempty" jsonschema:"Index of the first file to return"`
}

// inspectArchiveArgs are the arguments for the inspect_archive tool.
type inspectArchiveArgs struct {
	ArchiveID string `json:"archive_id" jsonschema:"Id returned by bundle_function"`
}

type bundleOut struct {
	ArchiveID     string     `json:"archive_id"`
	Size          int        `json:"size"`
	Modules       int        `json:"modules"`
	LocalModules  int        `json:"local_modules"`
	RemoteModules int        `json:"remote_modules"`
	Cycles        [][]string `json:"cycles,omitempty"`
}

func (s *Server) bundleFunction(ctx context.Context, args bundleFunctionArgs) *mcp.CallToolResult {
	if len(args.Files) == 0 {
		return errorResult("files is required")
	}
	files := make([]bundle.SourceFile, len(args.Files))
	for i, f := range args.Files {
		files[i] = bundle.SourceFile{Name: f.Name, Content: []byte(f.Content), MediaType: f.MediaType}
		if f.SourceMap != "" {
			files[i].SourceMap = []byte(f.SourceMap)
		}
	}

	res, err := bundle.Files(ctx, files, s.bundleOptions(args)...)
	if err != nil {
		return errorResult(fmt.Sprintf("bundle failed: %v", err))
	}

	id := store.ID(res.Archive)
	if err := s.store.Put(ctx, id, res.Archive); err != nil {
		return errorResult(fmt.Sprintf("storing archive: %v", err))
	}

	out := bundleOut{
		ArchiveID: id,
		Size:      len(res.Archive),
		Modules:   res.Modules,
		Cycles:    res.Graph.Cycles(),
	}
	for _, spec := range res.Graph.Specifiers() {
		n, _ := res.Graph.Node(spec)
		if n.Remote {
			out.RemoteModules++
		} else {
			out.LocalModules++
		}
	}
	s.logger.Info("stored archive", "id", id, "bytes", out.Size, "modules", out.Modules)
	return jsonResult(out)
}

// fileOut is an extracted file with its content as text.
type fileOut struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Content   string `json:"content"`
}

type extractOut struct {
	Files      []fileOut `json:"files"`
	Total      int       `json:"total"`
	NextOffset int       `json:"next_offset,omitempty"`
}

func (s *Server) extractFunction(ctx context.Context, args extractFunctionArgs) *mcp.CallToolResult {
	if args.ArchiveID == "" {
		return errorResult("archive_id is required")
	}
	if args.Offset < 0 {
		return errorResult("offset must not be negative")
	}

	if args.Prefix == "" {
		args.Prefix = s.cfg.Prefix
	}
	key := args.ArchiveID + "\x00" + args.Prefix + "\x00" + args.DeploymentID
	files, ok := s.pages.Get(key)
	if !ok {
		extracted, err := s.extractAll(ctx, args)
		if err != nil {
			return errorResult(fmt.Sprintf("extract failed: %v", err))
		}
		files = extracted
		s.pages.Add(key, files)
	}

	if args.Offset > len(files) {
		return errorResult(fmt.Sprintf("offset %d out of range (%d files)", args.Offset, len(files)))
	}
	page, next := paginate(files, args.Offset, s.cfg.Server.MaxResponseBytes)
	return jsonResult(extractOut{Files: page, Total: len(files), NextOffset: next})
}

func (s *Server) extractAll(ctx context.Context, args extractFunctionArgs) ([]fileOut, error) {
	rc, err := s.store.Open(ctx, args.ArchiveID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	opts := []bundle.Option{bundle.WithPrefix(args.Prefix)}
	if args.DeploymentID != "" {
		opts = append(opts, bundle.WithDeploymentID(args.DeploymentID))
	}
	files, err := bundle.ExtractReader(ctx, rc, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]fileOut, len(files))
	for i, f := range files {
		out[i] = fileOut{Name: f.Name, MediaType: f.MediaType, Content: string(f.Content)}
	}
	return out, nil
}

// paginate returns files from offset on while their encoded size stays under
// maxBytes. At least one file is returned when any remain. next is 0 when
// the page reaches the end.
func paginate(files []fileOut, offset, maxBytes int) (page []fileOut, next int) {
	page = []fileOut{}
	size := 0
	for i := offset; i < len(files); i++ {
		data, _ := json.Marshal(files[i])
		if len(page) > 0 && size+len(data) > maxBytes {
			return page, i
		}
		page = append(page, files[i])
		size += len(data)
	}
	return page, 0
}

type moduleInfo struct {
	Specifier    string            `json:"specifier"`
	Headers      map[string]string `json:"headers,omitempty"`
	Size         int               `json:"size"`
	SourceMap    bool              `json:"source_map"`
	SourceMapLen int               `json:"source_map_size,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Dependents   []string          `json:"dependents,omitempty"`
}

type inspectOut struct {
	ArchiveID string       `json:"archive_id"`
	Modules   []moduleInfo `json:"modules"`
}

func (s *Server) inspectArchive(ctx context.Context, args inspectArchiveArgs) *mcp.CallToolResult {
	if args.ArchiveID == "" {
		return errorResult("archive_id is required")
	}
	a, err := s.openArchive(ctx, args.ArchiveID)
	if err != nil {
		return errorResult(fmt.Sprintf("inspect failed: %v", err))
	}
	modules, err := describe(a)
	if err != nil {
		return errorResult(fmt.Sprintf("inspect failed: %v", err))
	}
	return jsonResult(inspectOut{ArchiveID: args.ArchiveID, Modules: modules})
}

func describe(a *archive.Archive) ([]moduleInfo, error) {
	g, err := a.Graph()
	if err != nil {
		return nil, err
	}
	out := make([]moduleInfo, 0, a.Len())
	for _, spec := range a.Specifiers() {
		m, _ := a.Module(spec)
		info := moduleInfo{
			Specifier:    spec,
			Size:         len(m.Content),
			SourceMap:    len(m.SourceMap) > 0,
			SourceMapLen: len(m.SourceMap),
			Dependencies: targets(g.Dependencies(spec)),
			Dependents:   targets(g.Dependents(spec)),
		}
		if len(m.Headers) > 0 {
			info.Headers = make(map[string]string, len(m.Headers))
			for _, h := range m.Headers {
				info.Headers[h.Key] = h.Value
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func targets(edges []graph.Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Target)
	}
	sort.Strings(out)
	return out
}

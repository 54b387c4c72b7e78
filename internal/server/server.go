package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/bundle"
	"github.com/dejo1307/edgezip/internal/config"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/store"
)

// ArchivesURI lists stored archive ids.
const ArchivesURI = "edgezip://archives"

// Server wraps the MCP server and connects it to the archive store.
type Server struct {
	mcp    *mcp.Server
	store  store.Store
	cfg    *config.Config
	remote loader.Fetcher
	pages  *expirable.LRU[string, []fileOut]
	logger *log.Logger
}

// New creates a new MCP server backed by st. A nil remote keeps http(s)
// dependencies disabled.
func New(st store.Store, cfg *config.Config, remote loader.Fetcher) (*Server, error) {
	if st == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		store:  st,
		cfg:    cfg,
		remote: remote,
		pages:  expirable.NewLRU[string, []fileOut](cfg.Server.CacheEntries, nil, cfg.Server.CacheTTL),
		logger: log.WithPrefix("server"),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "edgezip",
		Version: "0.1.0",
	}, nil)
	s.registerResources()
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         ArchivesURI,
		Name:        "Stored Archives",
		Description: "Ids of every archive in the configured store",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		text, err := s.archivesJSON(ctx)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: req.Params.URI, Text: text, MIMEType: "application/json"},
			},
		}, nil
	})
}

func (s *Server) archivesJSON(ctx context.Context) (string, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing archives: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(map[string]any{"archives": ids})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "bundle_function",
		Description: "Build a module archive from source files, store it, and return its id together with module counts and any import cycles.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args bundleFunctionArgs) (*mcp.CallToolResult, any, error) {
		return s.bundleFunction(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract_function",
		Description: "Extract the original source files from a stored archive. Large results are paged; pass next_offset back as offset to continue.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args extractFunctionArgs) (*mcp.CallToolResult, any, error) {
		return s.extractFunction(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inspect_archive",
		Description: "List the modules of a stored archive with their headers, sizes, source map presence, dependencies and dependents.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args inspectArchiveArgs) (*mcp.CallToolResult, any, error) {
		return s.inspectArchive(ctx, args), nil, nil
	})
}

func (s *Server) openArchive(ctx context.Context, id string) (*archive.Archive, error) {
	rc, err := s.store.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return archive.ParseReader(ctx, rc)
}

func (s *Server) bundleOptions(args bundleFunctionArgs) []bundle.Option {
	transpile := s.cfg.Build.Transpile
	if args.Transpile != nil {
		transpile = *args.Transpile
	}
	prefix := s.cfg.Prefix
	if args.Prefix != "" {
		prefix = args.Prefix
	}
	opts := []bundle.Option{
		bundle.WithPrefix(prefix),
		bundle.WithEntrypoints(args.Entrypoints...),
		bundle.WithBuildOptions(
			archive.WithConcurrency(s.cfg.Build.Concurrency),
			archive.WithTranspile(transpile),
		),
	}
	if s.remote != nil {
		opts = append(opts, bundle.WithRemote(s.remote))
	}
	return opts
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

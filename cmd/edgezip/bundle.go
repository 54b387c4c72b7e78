package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/bundle"
	"github.com/dejo1307/edgezip/internal/store"
)

type bundleFlags struct {
	out         string
	prefix      string
	entrypoints []string
	transpile   bool
}

func (a *app) newBundleCmd() *cobra.Command {
	f := &bundleFlags{}
	cmd := &cobra.Command{
		Use:   "bundle DIR",
		Short: "Build an archive from the sources under DIR",
		Long: `Build an archive from every source file under DIR, or only from the
files reachable from --entry. Without -o the archive is kept in the
configured store and its id is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBundle(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the archive to this path")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "logical root for file names (default from config)")
	cmd.Flags().StringSliceVarP(&f.entrypoints, "entry", "e", nil, "entrypoint file relative to DIR (repeatable)")
	cmd.Flags().BoolVar(&f.transpile, "transpile", false, "transpile TypeScript and JSX to JavaScript with source maps")
	return cmd
}

func (a *app) runBundle(cmd *cobra.Command, dir string, f *bundleFlags) error {
	files, err := collectSources(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files under %s", dir)
	}

	prefix := a.cfg.Prefix
	if f.prefix != "" {
		prefix = f.prefix
	}
	transpile := a.cfg.Build.Transpile || f.transpile
	opts := []bundle.Option{
		bundle.WithPrefix(prefix),
		bundle.WithEntrypoints(f.entrypoints...),
		bundle.WithBuildOptions(
			archive.WithConcurrency(a.cfg.Build.Concurrency),
			archive.WithTranspile(transpile),
		),
	}
	if r := a.remote(); r != nil {
		opts = append(opts, bundle.WithRemote(r))
	}

	res, err := bundle.Files(cmd.Context(), files, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.out != "" {
		if err := os.WriteFile(f.out, res.Archive, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.out, err)
		}
		fmt.Fprintf(out, "wrote %s (%d modules, %d bytes)\n", f.out, res.Modules, len(res.Archive))
	} else {
		st, err := a.openStore()
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		id := store.ID(res.Archive)
		if err := st.Put(cmd.Context(), id, res.Archive); err != nil {
			return fmt.Errorf("storing archive: %w", err)
		}
		fmt.Fprintf(out, "stored %s (%d modules, %d bytes)\n", id, res.Modules, len(res.Archive))
	}

	for _, c := range res.Graph.Cycles() {
		fmt.Fprintf(cmd.ErrOrStderr(), "cycle: %s\n", strings.Join(c, " -> "))
	}
	return nil
}

// collectSources reads every bundleable file under dir. Hidden directories
// and node_modules are skipped. Names are slash-separated and relative to dir.
func collectSources(dir string) ([]bundle.SourceFile, error) {
	var files []bundle.SourceFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		mt, ok := bundle.MediaTypeFor(d.Name())
		if !ok {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, bundle.SourceFile{
			Name:      filepath.ToSlash(rel),
			Content:   content,
			MediaType: mt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	return files, nil
}

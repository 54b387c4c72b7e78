package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dejo1307/edgezip/internal/bundle"
)

type extractFlags struct {
	out          string
	prefix       string
	deploymentID string
}

func (a *app) newExtractCmd() *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE",
		Short: "Recover the original source files from an archive",
		Long: `Recover the original source files from ARCHIVE, which is either a path
to an archive file or the id of an archive in the configured store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", ".", "directory to write the files into")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "logical root the names are relative to (default from config)")
	cmd.Flags().StringVar(&f.deploymentID, "deployment-id", "", "strip this deployment's root from file names")
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, ref string, f *extractFlags) error {
	rc, err := a.openArchive(cmd, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	prefix := a.cfg.Prefix
	if f.prefix != "" {
		prefix = f.prefix
	}
	opts := []bundle.Option{bundle.WithPrefix(prefix)}
	if f.deploymentID != "" {
		opts = append(opts, bundle.WithDeploymentID(f.deploymentID))
	}

	files, err := bundle.ExtractReader(cmd.Context(), rc, opts...)
	if err != nil {
		return err
	}
	for _, file := range files {
		if !filepath.IsLocal(file.Name) {
			return fmt.Errorf("refusing to write %q outside %s", file.Name, f.out)
		}
		dst := filepath.Join(f.out, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, file.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files to %s\n", len(files), f.out)
	return nil
}

// openArchive opens ref as a file, falling back to the store when no such
// file exists.
func (a *app) openArchive(cmd *cobra.Command, ref string) (io.ReadCloser, error) {
	if ref == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	fh, err := os.Open(ref)
	if err == nil {
		return fh, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	st, serr := a.openStore()
	if serr != nil {
		return nil, fmt.Errorf("opening store: %w", serr)
	}
	return st.Open(cmd.Context(), ref)
}

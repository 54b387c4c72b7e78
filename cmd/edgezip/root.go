package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dejo1307/edgezip/internal/config"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/store"
)

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "edgezip",
		Short: "Pack edge function sources into a single module archive",
		Long: `edgezip builds a self-contained archive from a function's source files
and everything they import, and recovers the original files from an archive.

Without a subcommand it serves the bundle, extract and inspect operations as
MCP tools over stdio.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file, .yaml or .toml (default is "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.newServeCmd(),
		a.newBundleCmd(),
		a.newExtractCmd(),
		a.newInspectCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	log.SetLevel(level)
	log.SetOutput(cmd.ErrOrStderr())
	a.cfg = cfg
	return nil
}

func (a *app) openStore() (store.Store, error) {
	sc := a.cfg.Store
	return store.New(sc.Kind, sc.Dir, store.S3Config{
		Endpoint:  sc.S3.Endpoint,
		Region:    sc.S3.Region,
		AccessKey: sc.S3.AccessKey,
		SecretKey: sc.S3.SecretKey,
		Bucket:    sc.S3.Bucket,
		UseSSL:    sc.S3.UseSSL,
		Prefix:    sc.S3.Prefix,
	})
}

// remote returns the fetcher for http(s) dependencies, or nil when remote
// modules are not allowed.
func (a *app) remote() loader.Fetcher {
	b := a.cfg.Build
	if !b.AllowRemote {
		return nil
	}
	r := loader.NewRemote(
		loader.WithTimeout(b.RemoteTimeout),
		loader.WithMaxBytes(b.MaxRemoteBytes),
	)
	if b.RemoteRetries > 0 {
		return loader.NewRetrying(r, b.RemoteRetries+1, 0)
	}
	return r
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shhac/wirebench/internal/app"
	"github.com/shhac/wirebench/internal/logging"
	"github.com/shhac/wirebench/internal/model"
)

var version = "0.1.0"

// cli carries the global flags shared by every command.
type cli struct {
	storagePath string
	workspace   string
	debug       bool
	verbose     bool

	// extra is appended to the options every command builds its App with.
	extra []app.Option
}

func newRootCmd(extra ...app.Option) *cobra.Command {
	c := &cli{extra: extra}
	root := &cobra.Command{
		Use:   "wirebench",
		Short: "wirebench - HTTP, WebSocket and gRPC workbench",
		Long: `wirebench keeps HTTP, WebSocket and gRPC requests as tabs grouped in
collections, sends them, and records every attempt in its history.

Examples:
  wirebench tab new http --name users --url https://api.example.com/users
  wirebench send users
  wirebench tab new grpc --name hello --url localhost:50051 \
    --service helloworld.Greeter --rpc SayHello --payload '{"name":"x"}'
  wirebench grpc describe reflect://localhost:50051
  wirebench history --limit 5

Environment:
  WIREBENCH_STORAGE_PATH, WIREBENCH_WORKSPACE, WIREBENCH_DEBUG
  OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE, OTEL_SERVICE_NAME`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.storagePath, "storage", "", "Storage directory (default ~/.wirebench)")
	flags.StringVarP(&c.workspace, "workspace", "w", "", "Workspace to load and save")
	flags.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log to stderr instead of the log file")

	root.AddCommand(
		c.listCmd(),
		c.collectionCmd(),
		c.tabCmd(),
		c.sendCmd(),
		c.grpcCmd(),
		c.historyCmd(),
	)
	return root
}

// open builds the App from the environment overlaid with global flags.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	cfg := app.ConfigFromEnv()
	if c.storagePath != "" {
		cfg.StoragePath = c.storagePath
	}
	if c.workspace != "" {
		cfg.Workspace = c.workspace
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = c.debug
	}

	var opts []app.Option
	if c.verbose {
		opts = append(opts, app.WithLogger(logging.NewConsoleLogger(cmd.ErrOrStderr(), cfg.Debug)))
	}
	opts = append(opts, c.extra...)

	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}

// mutate opens the App, runs fn and saves the workspace when fn succeeds.
func (c *cli) mutate(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	a, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	if err := fn(a); err != nil {
		return err
	}
	return a.Save()
}

// view opens the App and runs fn without saving.
func (c *cli) view(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	a, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	return fn(a)
}

// findCollection looks a collection up by name (case-insensitive) or id.
func findCollection(ws *model.Workspace, ref string) (*model.Collection, error) {
	if c := ws.CollectionByName(ref); c != nil {
		return c, nil
	}
	if c := ws.Collection(ref); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("collection %q not found", ref)
}

// findTab resolves ref as a tab id, a unique id prefix or a unique
// case-insensitive tab name.
func findTab(ws *model.Workspace, ref string) (*model.Tab, error) {
	if t := ws.FindTab(ref); t != nil {
		return t, nil
	}
	var matches []*model.Tab
	for _, col := range ws.Collections() {
		for _, t := range col.Tabs() {
			if strings.HasPrefix(t.ID(), ref) || strings.EqualFold(t.Name(), ref) {
				matches = append(matches, t)
			}
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("tab %q not found", ref)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("tab %q is ambiguous (%d matches)", ref, len(matches))
}

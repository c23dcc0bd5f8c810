// Command cirakctl inspects and maintains the intent store: conflict reports, match
// diagnostics and YAML imports.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/app"
	"github.com/kapu/cirak-widget-go/internal/config"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/snapshot"
	"github.com/kapu/cirak-widget-go/internal/service/store"
	"github.com/kapu/cirak-widget-go/internal/util"
)

type options struct {
	intentsDir string
	sqlitePath string
	jsonOutput bool
	verbose    bool
	timeout    time.Duration
}

// workspace is what every command reads from: a YAML directory or the SQL store.
type workspace struct {
	logger *zap.Logger
	source snapshot.Source
	repo   *store.Repository
	close  func()
}

func (w *workspace) snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return snapshot.NewBuilder(w.source, w.logger).Build(ctx)
}

func (o *options) open(ctx context.Context) (*workspace, error) {
	logger := zap.NewNop()
	if o.verbose {
		l, err := util.NewLogger("debug", "")
		if err != nil {
			return nil, err
		}
		logger = l
	}

	if o.intentsDir != "" {
		return &workspace{logger: logger, source: store.NewFileSource(o.intentsDir, logger), close: func() {}}, nil
	}

	cfg := config.Read()
	if o.sqlitePath != "" {
		cfg.Store.Driver = config.StoreDriverSQLite
		cfg.SQLite.Path = o.sqlitePath
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver == config.StoreDriverFiles {
		return &workspace{logger: logger, source: store.NewFileSource(cfg.Store.IntentsDir, logger), close: func() {}}, nil
	}

	db, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	repo := store.NewRepository(db, logger)
	return &workspace{
		logger: logger,
		source: repo,
		repo:   repo,
		close:  func() { _ = db.Close() },
	}, nil
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// emit writes v as indented JSON with --json, otherwise calls text.
func (o *options) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cirakctl",
		Short:         "Inspect and maintain the Cirak intent store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.intentsDir, "dir", "d", "", "Read intents from a YAML directory instead of the configured store")
	root.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "Use this SQLite database instead of the configured store")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Operation timeout")

	root.AddCommand(
		newConflictsCmd(opts),
		newAnalyzeCmd(opts),
		newNormalizationCmd(opts),
		newTestCmd(opts),
		newDeterminismCmd(opts),
		newValidateKeyCmd(opts),
		newImportCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

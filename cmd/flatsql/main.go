package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tuannm99/flatsql"
	"github.com/tuannm99/flatsql/internal"
	"github.com/tuannm99/flatsql/internal/logging"
	"github.com/tuannm99/flatsql/internal/metrics"
	"github.com/tuannm99/flatsql/internal/sql/executor"
)

func newRootCmd() *cobra.Command {
	v := internal.NewViper()
	var (
		cfgPath string
		oneShot string
	)

	cmd := &cobra.Command{
		Use:           "flatsql",
		Short:         "flatsql is a single-node SQL engine over flat CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.Load(v, cfgPath)
			if err != nil {
				return err
			}
			return run(cfg, oneShot, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to a YAML config file")
	flags.String("data-dir", "", "directory holding the table files")
	flags.String("log-level", "", "debug | info | warn | error")
	flags.StringVarP(&oneShot, "command", "c", "", "execute one statement and exit")
	bindFlag(v, "storage.workdir", cmd, "data-dir")
	bindFlag(v, "log.level", cmd, "log-level")
	return cmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func run(cfg *internal.FlatSqlConfig, oneShot string, in io.Reader, out io.Writer) error {
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		return err
	}

	db, err := flatsql.Open(cfg.Storage.Workdir, flatsql.Options{FallbackEncoding: cfg.Storage.FallbackEncoding})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	ex := executor.NewExecutor(db, executor.Options{
		UseIndexes:         cfg.Engine.UseIndexes,
		SortMergeThreshold: cfg.Engine.SortMergeThreshold,
		Metrics:            metrics.New(reg),
	})

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg)
		defer func() { _ = srv.Close() }()
	}

	if oneShot != "" {
		res, err := ex.ExecSQL(oneShot)
		if err != nil {
			return err
		}
		printResult(out, res)
		return nil
	}

	hist := NewHistory(cfg.Shell.HistoryFile)
	if err := hist.Load(cfg.Shell.HistoryMax); err != nil {
		slog.Warn("shell: cannot load history", "path", cfg.Shell.HistoryFile, "err", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Shell.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           io.NopCloser(in),
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(out, "flatsql: data directory %s\n", cfg.Storage.Workdir)
	return NewShell(ex, hist, reg, rl.Stdout()).Loop(rl, cfg.Shell.Prompt)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server stopped", "addr", addr, "err", err)
		}
	}()
	slog.Info("metrics: serving", "addr", addr)
	return srv
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

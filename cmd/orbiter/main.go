package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/engine"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/observ"
	"github.com/orblab/orbiter/internal/outbox"
	"github.com/orblab/orbiter/internal/runner"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var metricsAddr string

	root := &cobra.Command{
		Use:           "orbiter",
		Short:         "Opening-range breakout research engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9100)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if metricsAddr != "" {
			go serveMetrics(metricsAddr)
		}
	}

	root.AddCommand(runCommand(), sweepCommand())
	return root
}

func runCommand() *cobra.Command {
	var (
		cfgPath string
		barPath string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay one bar file through one configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			observ.Init(cfg.Log.Level)

			bars, err := market.LoadCSV(barPath, cfg.Location())
			if err != nil {
				return err
			}

			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			res, err := eng.Run(ctx, bars)
			if err != nil {
				return err
			}
			if outPath != "" {
				ob, err := outbox.New(outPath)
				if err != nil {
					return err
				}
				defer ob.Close()
				if err := ob.WriteRun(res); err != nil {
					return err
				}
			}
			printSummary(res.RunID, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "configs/base.yaml", "run configuration")
	cmd.Flags().StringVarP(&barPath, "bars", "b", "", "CSV bar file (time,open,high,low,close,volume[,session])")
	cmd.Flags().StringVarP(&outPath, "outbox", "o", "", "JSONL output path for decision/trade records")
	cmd.MarkFlagRequired("bars")
	return cmd
}

// sweepGrid is the sweep file format: named configs replayed over the same
// bars.
type sweepGrid struct {
	Jobs []struct {
		Name   string `yaml:"name"`
		Config string `yaml:"config"`
	} `yaml:"jobs"`
}

func sweepCommand() *cobra.Command {
	var (
		gridPath string
		barPath  string
		workers  int
		ratePS   float64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a grid of configurations over the same bars in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			observ.Init("info")

			b, err := os.ReadFile(gridPath)
			if err != nil {
				return err
			}
			var grid sweepGrid
			if err := yaml.Unmarshal(b, &grid); err != nil {
				return fmt.Errorf("parse %s: %w", gridPath, err)
			}
			if len(grid.Jobs) == 0 {
				return fmt.Errorf("%s: no jobs", gridPath)
			}

			// every configuration validates before any run starts
			jobs := make([]runner.Job, 0, len(grid.Jobs))
			for _, j := range grid.Jobs {
				cfg, err := config.Load(j.Config)
				if err != nil {
					return fmt.Errorf("job %s: %w", j.Name, err)
				}
				jobs = append(jobs, runner.Job{Name: j.Name, Cfg: cfg})
			}

			loc := jobs[0].Cfg.Location()
			bars, err := market.LoadCSV(barPath, loc)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			results := runner.New(workers, ratePS).Run(ctx, jobs, bars)
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					log := observ.Logger()
					log.Error().Str("job", r.Name).Err(r.Err).Msg("run failed")
					continue
				}
				printSummary(r.Name, r.Run)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&gridPath, "grid", "g", "", "sweep grid YAML")
	cmd.Flags().StringVarP(&barPath, "bars", "b", "", "CSV bar file shared by all jobs")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "concurrent runs")
	cmd.Flags().Float64Var(&ratePS, "rate", 0, "max run starts per second (0 = unthrottled)")
	cmd.MarkFlagRequired("grid")
	cmd.MarkFlagRequired("bars")
	return cmd
}

func printSummary(name string, res *engine.RunResult) {
	observ.Log("run_summary", map[string]any{
		"name":     name,
		"symbol":   res.Symbol,
		"sessions": res.Sessions,
		"bars":     res.BarsProcessed,
		"skipped":  res.BarsSkipped,
		"trades":   len(res.Trades),
		"wins":     res.Wins,
		"losses":   res.Losses,
		"total_r":  fmt.Sprintf("%.2f", res.TotalR),
	})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log := observ.Logger()
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

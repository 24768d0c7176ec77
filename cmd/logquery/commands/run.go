package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/engine"
	"github.com/fanzha/logquery/internal/query"
	"github.com/fanzha/logquery/internal/schema"
	"github.com/fanzha/logquery/internal/utils/logger"
)

var (
	runWorkers    int
	runOutput     string
	runMetricsOn  string
	runNoProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the configured query against the log directory",
	// Short: 对日志目录执行配置的查询
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Flag overrides / 命令行覆盖
		if runWorkers > 0 {
			cfg.WorkerPoolSize = runWorkers
		}
		if runOutput != "" {
			cfg.Query.OutputFile = runOutput
		}
		if runMetricsOn != "" {
			cfg.MetricsListen = runMetricsOn
		}
		if runNoProgress {
			cfg.ProgressInterval = "0s"
		}

		sc, err := schema.Compile(cfg.Schema)
		if err != nil {
			return err
		}
		spec, err := query.Compile(cfg.Query, sc)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := logger.Get(ctx)

		if cfg.MetricsListen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go func() {
				if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
					log.Warnf("metrics endpoint failed: %v", err)
				}
			}()
			log.Infof("metrics exposed on %s/metrics", cfg.MetricsListen)
		}

		sched := engine.NewScheduler(cfg, sc, spec)
		result, err := sched.Run(ctx)
		if err != nil {
			return err
		}

		printResult(os.Stdout, os.Stderr, cfg, spec, result)

		if result.Incomplete {
			return fmt.Errorf("run incomplete: canceled before all files were processed")
		}
		return nil
	},
}

// printResult renders the final result on out, keeping diagnostics on errOut
// so the answer stays pipe-friendly. An incomplete run has no answer to
// present; only the failure report is shown.
// printResult 将最终结果打印到 out，诊断信息走 errOut，保证输出可被管道消费。
// 未完成的运行没有可呈现的答案，只输出失败报告。
func printResult(out, errOut io.Writer, cfg *config.Config, spec *query.Spec, result *engine.FinalResult) {
	if !result.Incomplete {
		switch spec.Mode() {
		case query.ModeCount:
			fmt.Fprintf(out, "%d\n", result.MatchCount)
		case query.ModeGroup:
			// Deterministic report order regardless of map iteration.
			// 输出顺序与 map 遍历顺序无关，保证确定性。
			keys := make([]string, 0, len(result.Groups))
			for k := range result.Groups {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s\t%d\n", k, result.Groups[k])
			}
		default:
			if cfg.Query.OutputFile == "" {
				for _, m := range result.Matches {
					fmt.Fprintln(out, m.Line)
				}
			}
		}
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(errOut, "\n%d files skipped:\n", len(result.Errors))
		for _, fe := range result.Errors {
			fmt.Fprintf(errOut, "  %s [%s]: %s\n", fe.Path, fe.Kind, fe.Message)
		}
	}
}

func init() {
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Worker pool size (0 = all available cores)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write matched raw records to this file")
	runCmd.Flags().StringVar(&runMetricsOn, "metrics-listen", "", "Expose Prometheus metrics on this address during the run")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "Disable periodic progress logging")
}

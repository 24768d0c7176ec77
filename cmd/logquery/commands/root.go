package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/utils/logger"
)

var (
	configPath string

	// The config is parsed once in PersistentPreRun; subcommands reuse the
	// same immutable snapshot through loadConfig.
	// 配置在 PersistentPreRun 中只解析一次，子命令通过 loadConfig 复用同一份快照。
	cachedCfg *config.Config
	cachedErr error
)

var RootCmd = &cobra.Command{
	Use:   "logquery",
	Short: "A parallel query engine for delimited log files",
	// Short: 一个面向分隔符日志文件的并行查询引擎
	Long: `logquery scans a directory of (optionally gzip-compressed) log files,
extracts structured fields from each record and evaluates a compiled filter
across all available CPU cores.
logquery 并行扫描一个目录下的（可选 gzip 压缩的）日志文件，
按声明的模式提取结构化字段，并用编译后的过滤条件在所有可用核上求值。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cachedCfg, cachedErr = config.Load(effectiveConfigPath())
		if cachedErr != nil {
			// If config fails to load, fall back to console-only logging;
			// commands that need the config surface the real error through
			// loadConfig.
			// 配置加载失败时退回仅控制台日志；
			// 需要配置的命令会通过 loadConfig 给出真正的错误。
			logger.Init(logger.LoggingConfig{Level: "info"})
		} else {
			logger.Init(cachedCfg.Logging)
		}

		ctx := logger.WithContext(cmd.Context(), logger.Get(nil))
		cmd.SetContext(ctx)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("Path to configuration file (default: %s)", config.DefaultConfigPath))

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(testCmd)
	RootCmd.AddCommand(versionCmd)
}

// effectiveConfigPath resolves the --config flag with its default.
func effectiveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath
}

// loadConfig returns the snapshot taken in PersistentPreRun, loading on
// demand when a command runs outside the cobra lifecycle.
func loadConfig() (*config.Config, error) {
	if cachedCfg == nil && cachedErr == nil {
		cachedCfg, cachedErr = config.Load(effectiveConfigPath())
	}
	return cachedCfg, cachedErr
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

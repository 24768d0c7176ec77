package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Populated by the build via -ldflags.
// 由构建时 -ldflags 注入。
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	// Short: 显示版本信息
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("logquery %s\n", Version)
		fmt.Printf("  commit:  %s\n", GitCommit)
		fmt.Printf("  built:   %s\n", BuildDate)
		fmt.Printf("  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

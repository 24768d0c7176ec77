package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/query"
	"github.com/fanzha/logquery/internal/schema"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default configuration file",
	// Short: 写出带注释的默认配置文件
	RunE: func(cmd *cobra.Command, args []string) error {
		path := effectiveConfigPath()
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("✅ wrote default config to %s\n", path)
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Validate the configuration, schema and query without scanning",
	// Short: 校验配置、模式与查询，不执行扫描
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sc, err := schema.Compile(cfg.Schema)
		if err != nil {
			return err
		}
		if _, err := query.Compile(cfg.Query, sc); err != nil {
			return err
		}
		fmt.Printf("✅ config OK: %d fields, mode=%s, %d conditions\n",
			sc.NumFields(), cfg.Query.Mode, len(cfg.Query.Conditions))
		return nil
	},
}

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pypod/pypod/internal/logging"
	"github.com/pypod/pypod/interp"
)

const version = "0.1.0"

var (
	cfgFile string
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "pypod",
	Short: "Embedded Python worker with dynamic package loading",
	Long: `pypod runs Python code chunks against a persistent interpreter embedded
in the worker process via WebAssembly.

Before a chunk executes, its imports are scanned, each dependency is
classified as bundled or installable, and missing packages are loaded
automatically. Output streams back while the chunk runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		logging.SetDefault("pypod", version, c.LogFormat, parseLevel(c.LogLevel))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	pf.String("log-format", "text", "Log format: text, json")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("asset-dir", interp.DefaultConfig().AssetDir, "Runtime asset directory")
	pf.Duration("start-timeout", 30*time.Second, "Interpreter start timeout")
	pf.Bool("package-cache", true, "Cache package load outcomes")
	pf.Duration("load-timeout", 60*time.Second, "Per-package load timeout")
	pf.Bool("preload", true, "Preload the ecosystem installer at startup")
	pf.BoolP("verbose", "v", false, "Verbose package load logging")
}

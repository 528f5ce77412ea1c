package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/pypod/pypod/evaluator"
	"github.com/pypod/pypod/interp"
	"github.com/pypod/pypod/pkgload"
)

// Config is the merged process configuration: YAML file first, command-line
// flags on top.
type Config struct {
	LogFormat    string        `koanf:"log-format"`
	LogLevel     string        `koanf:"log-level"`
	AssetDir     string        `koanf:"asset-dir"`
	StartTimeout time.Duration `koanf:"start-timeout"`
	PackageCache bool          `koanf:"package-cache"`
	LoadTimeout  time.Duration `koanf:"load-timeout"`
	Preload      bool          `koanf:"preload"`
	Verbose      bool          `koanf:"verbose"`
}

func loadConfig(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}

	// Changed flags win over the file; unchanged flags fill the gaps with
	// their defaults.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("merge flags: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func buildEvaluator(c Config, host evaluator.PluginHost) *evaluator.Evaluator {
	icfg := interp.DefaultConfig()
	if c.AssetDir != "" {
		icfg.AssetDir = c.AssetDir
	}
	if c.StartTimeout > 0 {
		icfg.StartTimeout = c.StartTimeout
	}

	pcfg := pkgload.Config{
		CacheEnabled:      c.PackageCache,
		LoadTimeout:       c.LoadTimeout,
		PreloadEssentials: c.Preload,
		Verbose:           c.Verbose,
	}

	return evaluator.New(host,
		evaluator.WithInterpreterConfig(icfg),
		evaluator.WithPackageConfig(pcfg),
	)
}

package main

import (
	"strings"

	"github.com/cordum/packedge/core/infra/buildinfo"
	"github.com/cordum/packedge/core/infra/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "packedge",
	Short: "packedge - edge router for published packs",
	Long: `packedge serves files from published packs at the edge. It resolves pack
entry points against the pack store, renders pack info pages and proxies search.`,
	Version:       buildinfo.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("packedge {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML config overlay (default: $EDGE_CONFIG_PATH)")
}

// loadConfig applies defaults, the YAML overlay from --config or
// EDGE_CONFIG_PATH, then the environment.
func loadConfig() (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}
	return config.LoadWithFile()
}

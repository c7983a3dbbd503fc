package main

import (
	"fmt"

	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/edge/packs"
	"github.com/spf13/cobra"
)

var resolveHeadersOnly bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <packId> [path]",
	Short: "Resolve one file against the configured pack store",
	Long: `Resolve runs the same lookup and entry fallback the /cdn route uses and
prints the resolved path, content type and content.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveHeadersOnly, "head", false, "Print only the resolved path and content type")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	filePath := packs.DefaultEntry
	if len(args) == 2 {
		filePath = args[1]
	}
	client := packs.NewClient(cfg.PackStoreURL, cfg.PackStoreAPIKey, cfg.UpstreamTimeout)
	file, err := packs.NewResolver(client, nil).Resolve(cmd.Context(), args[0], filePath)
	if err != nil {
		e := edgeerr.From(err)
		return fmt.Errorf("%s (%d): %w", e.ClientCode(), e.Kind.Status(), err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path: %s\ncontent-type: %s\n", file.Path, file.ContentType)
	if !resolveHeadersOnly {
		fmt.Fprintf(out, "\n%s", file.Content)
	}
	return nil
}

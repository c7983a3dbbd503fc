package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cordum/packedge/core/edge/gateway"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the compiled route table in match order",
	Args:  cobra.NoArgs,
	RunE:  runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := gateway.New(cfg, gateway.Deps{})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMETHODS\tPATTERN\tPARAMS")
	for _, route := range s.Routes() {
		params := strings.Join(route.Params, ",")
		if params == "" {
			params = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", route.Name, strings.Join(route.Methods, ","), route.Pattern, params)
	}
	return w.Flush()
}

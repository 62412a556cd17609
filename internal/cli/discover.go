package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryShowCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the configured model directory and rebuild the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			reg, err := c.Discover()
			if err != nil {
				return err
			}
			printModelTable(reg)
			return nil
		})
	},
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rescan the model directory, preserving tier/thinking/enabled overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			reg, err := c.Rescan()
			if err != nil {
				return err
			}
			printModelTable(reg)
			return nil
		})
	},
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the model registry",
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every model currently in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			printModelTable(c.Registry.Registry())
			return nil
		})
	},
}

func printModelTable(reg *domain.ModelRegistry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL ID\tTIER\tSIZE\tQUANT\tPORT\tENABLED")
	for _, m := range reg.Models {
		port := "-"
		if m.Port != nil {
			port = fmt.Sprintf("%d", *m.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1fB\t%s\t%s\t%t\n", m.ModelID, m.EffectiveTier(), m.SizeParams, m.Quantization, port, m.Enabled)
	}
	w.Flush()
}

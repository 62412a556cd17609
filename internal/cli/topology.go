package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
)

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.AddCommand(topologyShowCmd)
	topologyCmd.AddCommand(topologyFlowCmd)
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Inspect the component health graph and per-query data flows",
}

var topologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current health snapshot of every component",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tSTATUS\tCPU%\tMEM\tERROR RATE\tAVG LATENCY")
			for _, n := range c.Topology.Nodes() {
				h := c.Topology.Health()[n.ID]
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%.3f\t%.1fms\n", n.Name, h.Status, h.CPUPercent, h.MemoryBytes, h.ErrorRate, h.AvgLatency)
			}
			w.Flush()
			return nil
		})
	},
}

var topologyFlowCmd = &cobra.Command{
	Use:   "flow QUERY_ID",
	Short: "Print the ordered component path one query traversed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			flow, ok := c.Topology.Flow(args[0])
			if !ok {
				return fmt.Errorf("no recorded flow for query %s", args[0])
			}
			for i, comp := range flow.Components {
				fmt.Printf("%d. %s @ %s\n", i+1, comp, flow.Timestamps[i].Format("15:04:05.000"))
			}
			return nil
		})
	},
}

package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
)

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.AddCommand(serversStartAllCmd)
	serversCmd.AddCommand(serversStopAllCmd)
	serversCmd.AddCommand(serversRestartAllCmd)
	serversCmd.AddCommand(serversStatusCmd)
	serversCmd.AddCommand(serversLogsCmd)
	serversLogsCmd.Flags().IntVarP(&logsTailN, "lines", "n", 50, "number of trailing log lines to print")
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage inference-server subprocesses",
}

var serversStartAllCmd = &cobra.Command{
	Use:   "start-all",
	Short: "Start one inference server per enabled model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			started := c.Servers.StartAll(context.Background(), c.Registry.Registry().Enabled())
			fmt.Printf("started %d/%d servers\n", len(started), len(c.Registry.Registry().Enabled()))
			return nil
		})
	},
}

var serversStopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every tracked server (graceful, then forceful)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			c.Servers.StopAll(time.Duration(c.Config.Server.GracefulStopSecs) * time.Second)
			return nil
		})
	},
}

var serversRestartAllCmd = &cobra.Command{
	Use:   "restart-all",
	Short: "Stop then start every enabled model's server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			c.Servers.StopAll(time.Duration(c.Config.Server.GracefulStopSecs) * time.Second)
			c.Servers.StartAll(context.Background(), c.Registry.Registry().Enabled())
			return nil
		})
	},
}

var serversStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of every tracked server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			summary := c.Servers.StatusSummary()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tPORT\tPID\tREADY\tEXTERNAL")
			for key, proc := range summary.Servers {
				fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%t\n", key, proc.Port, proc.PID, proc.IsReady, proc.IsExternal)
			}
			w.Flush()
			fmt.Printf("%d/%d active\n", summary.Active, summary.Total)
			return nil
		})
	},
}

var logsTailN int

var serversLogsCmd = &cobra.Command{
	Use:   "logs MODEL_ID",
	Short: "Print the last N lines of a tracked server's stderr",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			for _, l := range c.Servers.Tail(args[0], logsTailN) {
				fmt.Println(l.Text)
			}
			return nil
		})
	},
}

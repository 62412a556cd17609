package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/eventbus"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
	eventsTailCmd.Flags().StringVar(&eventsMinSeverity, "min-severity", "INFO", "minimum severity to show (INFO|WARNING|ERROR)")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the live telemetry event stream",
}

var eventsMinSeverity string

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Replay recent history then stream live events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			sub := c.Events.Subscribe(eventbus.Filter{MinSeverity: domain.Severity(eventsMinSeverity)})
			defer sub.Close()
			for e := range sub.Events {
				fmt.Printf("[%s] %s %s %v\n", e.Timestamp.Format("15:04:05"), e.Severity, e.Type, e.Message)
			}
			return nil
		})
	},
}

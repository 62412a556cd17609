package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
)

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.AddCommand(instancesLsCmd)
	instancesCmd.AddCommand(instancesCreateCmd)
	instancesCmd.AddCommand(instancesStartCmd)
	instancesCmd.AddCommand(instancesStopCmd)
	instancesCmd.AddCommand(instancesRmCmd)

	instancesCreateCmd.Flags().StringVar(&instSystemPrompt, "system-prompt", "", "system prompt for this instance")
	instancesCreateCmd.Flags().BoolVar(&instWebSearch, "web-search", false, "enable web search for this instance")
}

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Manage named configuration overlays on a base model",
}

var instancesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE ID\tBASE MODEL\tPORT\tSTATUS\tWEB SEARCH")
			for _, inst := range c.Instances.List() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n", inst.InstanceID, inst.BaseModelID, inst.Port, inst.Status, inst.WebSearchEnabled)
			}
			w.Flush()
			return nil
		})
	},
}

var (
	instSystemPrompt string
	instWebSearch    bool
)

var instancesCreateCmd = &cobra.Command{
	Use:   "create BASE_MODEL_ID DISPLAY_NAME",
	Short: "Create a new instance overlay on a base model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			base, ok := c.Registry.Registry().Models[args[0]]
			if !ok {
				return fmt.Errorf("%s: %w", args[0], domain.ErrModelNotFound)
			}
			inst, err := c.Instances.Create(base, args[1], instSystemPrompt, instWebSearch)
			if err != nil {
				return err
			}
			fmt.Println(inst.InstanceID)
			return nil
		})
	},
}

var instancesStartCmd = &cobra.Command{
	Use:   "start INSTANCE_ID",
	Short: "Start an instance's dedicated server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			inst, err := c.Instances.Get(args[0])
			if err != nil {
				return err
			}
			base, ok := c.Registry.Registry().Models[inst.BaseModelID]
			if !ok {
				return fmt.Errorf("%s: %w", inst.BaseModelID, domain.ErrModelNotFound)
			}
			return c.Instances.Start(context.Background(), args[0], base)
		})
	},
}

var instancesStopCmd = &cobra.Command{
	Use:   "stop INSTANCE_ID",
	Short: "Stop an instance's dedicated server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			return c.Instances.Stop(args[0], time.Duration(c.Config.Server.GracefulStopSecs)*time.Second)
		})
	},
}

var instancesRmCmd = &cobra.Command{
	Use:   "rm INSTANCE_ID",
	Short: "Delete a stopped instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error { return c.Instances.Delete(args[0]) })
	},
}

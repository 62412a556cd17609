package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsEnableCmd)
	modelsCmd.AddCommand(modelsDisableCmd)
	modelsCmd.AddCommand(modelsTierCmd)
	modelsCmd.AddCommand(modelsThinkingCmd)
	modelsCmd.AddCommand(modelsBulkEnableCmd)
	modelsCmd.AddCommand(modelsBulkDisableCmd)
	modelsCmd.AddCommand(modelsRuntimeCmd)
	modelsRuntimeCmd.Flags().IntVar(&runtimeNGPULayers, "n-gpu-layers", -1, "override n_gpu_layers (-1 = unset)")
	modelsRuntimeCmd.Flags().IntVar(&runtimeCtxSize, "ctx-size", -1, "override ctx_size (-1 = unset)")
	modelsRuntimeCmd.Flags().IntVar(&runtimeNThreads, "n-threads", -1, "override n_threads (-1 = unset)")
	modelsRuntimeCmd.Flags().IntVar(&runtimeBatchSize, "batch-size", -1, "override batch_size (-1 = unset)")

	rootCmd.AddCommand(portsCmd)
	portsCmd.AddCommand(portsSetRangeCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage per-model overrides",
}

var modelsEnableCmd = &cobra.Command{
	Use:   "enable MODEL_ID",
	Short: "Enable a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error { return c.Registry.SetEnabled(args[0], true) })
	},
}

var modelsDisableCmd = &cobra.Command{
	Use:   "disable MODEL_ID",
	Short: "Disable a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error { return c.Registry.SetEnabled(args[0], false) })
	},
}

var modelsBulkEnableCmd = &cobra.Command{
	Use:   "enable-all",
	Short: "Enable every discovered model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error { return c.Registry.BulkSetEnabled(true) })
	},
}

var modelsBulkDisableCmd = &cobra.Command{
	Use:   "disable-all",
	Short: "Disable every discovered model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error { return c.Registry.BulkSetEnabled(false) })
	},
}

var modelsTierCmd = &cobra.Command{
	Use:   "tier MODEL_ID [FAST|BALANCED|POWERFUL|clear]",
	Short: "Override (or clear) a model's assigned tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			if args[1] == "clear" {
				return c.Registry.SetTierOverride(args[0], nil)
			}
			tier := domain.Tier(args[1])
			if !tier.Valid() {
				return fmt.Errorf("invalid tier %q", args[1])
			}
			return c.Registry.SetTierOverride(args[0], &tier)
		})
	},
}

var modelsThinkingCmd = &cobra.Command{
	Use:   "thinking MODEL_ID [true|false|clear]",
	Short: "Override (or clear) a model's thinking-model classification",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			if args[1] == "clear" {
				return c.Registry.SetThinkingOverride(args[0], nil)
			}
			v := args[1] == "true"
			return c.Registry.SetThinkingOverride(args[0], &v)
		})
	},
}

var (
	runtimeNGPULayers int
	runtimeCtxSize    int
	runtimeNThreads   int
	runtimeBatchSize  int
)

var modelsRuntimeCmd = &cobra.Command{
	Use:   "runtime MODEL_ID",
	Short: "Override a model's per-instance runtime parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var overrides domain.RuntimeOverrides
		if runtimeNGPULayers >= 0 {
			overrides.NGPULayers = &runtimeNGPULayers
		}
		if runtimeCtxSize >= 0 {
			overrides.CtxSize = &runtimeCtxSize
		}
		if runtimeNThreads >= 0 {
			overrides.NThreads = &runtimeNThreads
		}
		if runtimeBatchSize >= 0 {
			overrides.BatchSize = &runtimeBatchSize
		}
		return withCore(func(c *core.Core) error {
			return c.Registry.SetRuntimeOverrides(args[0], overrides)
		})
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Manage the discovery port range",
}

var portsSetRangeCmd = &cobra.Command{
	Use:   "set-range LO HI",
	Short: "Update the port range future discoveries allocate from",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var lo, hi int
		if _, err := fmt.Sscanf(args[0], "%d", &lo); err != nil {
			return err
		}
		if _, err := fmt.Sscanf(args[1], "%d", &hi); err != nil {
			return err
		}
		return withCore(func(c *core.Core) error {
			return c.Registry.UpdatePortRange(domain.PortRange{Lo: lo, Hi: hi})
		})
	},
}

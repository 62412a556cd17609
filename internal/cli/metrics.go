package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
)

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsTimeSeriesCmd)
	metricsCmd.AddCommand(metricsSummaryCmd)
	metricsCmd.AddCommand(metricsCompareCmd)
	metricsCmd.AddCommand(metricsBreakdownCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Query the time-series metrics aggregator",
}

var metricsTimeSeriesCmd = &cobra.Command{
	Use:   "timeseries METRIC RANGE",
	Short: "Print a downsampled time series for METRIC over RANGE (1h|6h|24h|7d|30d)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			points, summary := c.Metrics.TimeSeries(args[0], domain.MetricRange(args[1]), nil)
			for _, p := range points {
				fmt.Printf("%d\t%.4f\n", p.Timestamp, p.Value)
			}
			fmt.Printf("summary: min=%.2f max=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f\n",
				summary.Min, summary.Max, summary.Avg, summary.P50, summary.P95, summary.P99)
			return nil
		})
	},
}

var metricsSummaryCmd = &cobra.Command{
	Use:   "summary METRIC RANGE",
	Short: "Print min/max/avg/p50/p95/p99 for METRIC over RANGE",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			s := c.Metrics.Summary(args[0], domain.MetricRange(args[1]))
			fmt.Printf("min=%.2f max=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f\n", s.Min, s.Max, s.Avg, s.P50, s.P95, s.P99)
			return nil
		})
	},
}

var metricsCompareCmd = &cobra.Command{
	Use:   "compare RANGE METRIC...",
	Short: "Print aligned-bucket series for several metrics over RANGE",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			series := c.Metrics.Compare(args[1:], domain.MetricRange(args[0]))
			for _, s := range series {
				fmt.Printf("%s: %d points\n", s.Metric, len(s.Points))
			}
			return nil
		})
	},
}

var metricsBreakdownCmd = &cobra.Command{
	Use:   "breakdown METRIC RANGE",
	Short: "Print a per-model_id aggregation of METRIC over RANGE",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			for modelID, s := range c.Metrics.ModelBreakdown(args[0], domain.MetricRange(args[1])) {
				fmt.Printf("%s: avg=%.2f p95=%.2f\n", modelID, s.Avg, s.P95)
			}
			return nil
		})
	},
}

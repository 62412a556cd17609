package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.PersistentFlags().BoolVar(&queryUseContext, "context", false, "retrieve CGRAG context before generating")
	queryCmd.PersistentFlags().BoolVar(&queryUseWebSearch, "web-search", false, "enrich the prompt with web search results")
	queryCmd.PersistentFlags().IntVar(&queryMaxTokens, "max-tokens", 512, "maximum tokens to generate")
	queryCmd.PersistentFlags().Float64Var(&queryTemperature, "temperature", 0.7, "sampling temperature")

	queryCmd.AddCommand(querySimpleCmd)
	queryCmd.AddCommand(queryTwoStageCmd)

	queryCouncilCmd.Flags().BoolVar(&councilAdversarial, "debate", false, "run adversarial debate instead of consensus")
	queryCouncilCmd.Flags().IntVar(&councilMaxTurns, "max-turns", 6, "debate: maximum turns")
	queryCouncilCmd.Flags().BoolVar(&councilDynamicTermination, "dynamic-termination", true, "debate: allow early termination")
	queryCouncilCmd.Flags().StringVar(&councilProModel, "pro-model", "", "debate: explicit PRO model id")
	queryCouncilCmd.Flags().StringVar(&councilConModel, "con-model", "", "debate: explicit CON model id")
	queryCmd.AddCommand(queryCouncilCmd)

	queryBenchmarkCmd.Flags().BoolVar(&benchmarkSerial, "serial", true, "run models one at a time instead of batched-concurrent")
	queryBenchmarkCmd.Flags().IntVar(&benchmarkBatchSize, "batch-size", 3, "concurrent batch size when --serial=false")
	queryCmd.AddCommand(queryBenchmarkCmd)
}

var (
	queryUseContext   bool
	queryUseWebSearch bool
	queryMaxTokens    int
	queryTemperature  float64
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Submit a query to one of the orchestrator's execution modes",
}

func runQuery(req domain.QueryRequest) error {
	return withCore(func(c *core.Core) error {
		resp, err := c.Query.Process(context.Background(), req)
		if err != nil {
			return err
		}
		fmt.Println(resp.Response)
		meta, _ := json.MarshalIndent(resp.Metadata, "", "  ")
		fmt.Println(string(meta))
		return nil
	})
}

var querySimpleCmd = &cobra.Command{
	Use:   "simple QUERY...",
	Short: "Single FAST-tier model, no multi-turn refinement",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(domain.QueryRequest{
			Query: joinArgs(args), Mode: domain.ModeSimple,
			UseContext: queryUseContext, UseWebSearch: queryUseWebSearch,
			MaxTokens: queryMaxTokens, Temperature: queryTemperature,
		})
	},
}

var queryTwoStageCmd = &cobra.Command{
	Use:   "two-stage QUERY...",
	Short: "FAST draft, then a BALANCED/POWERFUL refinement pass",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(domain.QueryRequest{
			Query: joinArgs(args), Mode: domain.ModeTwoStage,
			UseContext: queryUseContext, UseWebSearch: queryUseWebSearch,
			MaxTokens: queryMaxTokens, Temperature: queryTemperature,
		})
	},
}

var (
	councilAdversarial        bool
	councilMaxTurns           int
	councilDynamicTermination bool
	councilProModel           string
	councilConModel           string
)

var queryCouncilCmd = &cobra.Command{
	Use:   "council QUERY...",
	Short: "Three-way consensus, or two-model adversarial debate with --debate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(domain.QueryRequest{
			Query: joinArgs(args), Mode: domain.ModeCouncil,
			UseContext: queryUseContext, UseWebSearch: queryUseWebSearch,
			MaxTokens: queryMaxTokens, Temperature: queryTemperature,
			Council: domain.CouncilOptions{
				Adversarial:        councilAdversarial,
				ProModel:           councilProModel,
				ConModel:           councilConModel,
				MaxTurns:           councilMaxTurns,
				DynamicTermination: councilDynamicTermination,
			},
		})
	},
}

var (
	benchmarkSerial    bool
	benchmarkBatchSize int
)

var queryBenchmarkCmd = &cobra.Command{
	Use:   "benchmark QUERY...",
	Short: "Run every enabled model on the same prompt for comparison",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(domain.QueryRequest{
			Query: joinArgs(args), Mode: domain.ModeBenchmark,
			UseContext: queryUseContext, UseWebSearch: queryUseWebSearch,
			MaxTokens: queryMaxTokens, Temperature: queryTemperature,
			Benchmark: domain.BenchmarkOptions{Serial: benchmarkSerial, BatchSize: benchmarkBatchSize},
		})
	},
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

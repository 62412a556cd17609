package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/core"
	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/eventbus"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat QUERY...",
	Short: "Run the Code-Chat ReAct agent on a developer task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core.Core) error {
			startConfirmationListener(c)
			result, err := c.CodeChat.Run(context.Background(), domain.CodeChatRequest{
				Query:         joinArgs(args),
				WorkspaceRoot: c.Config.CodeChat.WorkspaceRoot,
			})
			for _, step := range result.Steps {
				fmt.Printf("--- step %d ---\n%s\n", step.StepNumber, step.Thought)
				if step.Action != nil {
					fmt.Printf("action: %s(%v)\n", step.Action.Tool, step.Action.Args)
				}
				if step.Observation != "" {
					fmt.Printf("observation: %s\n", step.Observation)
				}
			}
			if err != nil {
				return err
			}
			fmt.Println(result.Answer)
			return nil
		})
	},
}

// startConfirmationListener subscribes to CODECHAT_ACTION_PENDING
// events and prompts the operator on stdin whenever a tool requires
// confirmation (file write, file delete, git commit — spec.md §4.12).
func startConfirmationListener(c *core.Core) {
	sub := c.Events.Subscribe(eventbus.Filter{EventTypes: []domain.EventType{domain.EventCodeChatActionPending}})
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		for e := range sub.Events {
			sessionID, _ := e.Metadata["sessionId"].(string)
			actionID, _ := e.Metadata["actionId"].(string)
			tool, _ := e.Metadata["tool"].(string)
			fmt.Printf("confirm %s(%v)? [y/N] ", tool, e.Metadata["args"])
			approved := false
			if scanner.Scan() {
				approved = scanner.Text() == "y" || scanner.Text() == "Y"
			}
			c.CodeChat.Confirm(sessionID, actionID, approved)
		}
	}()
}

// Package codechat implements the Code-Chat Agent: a ReAct loop that
// alternates planning (one LLM call via the Model Selector and
// Inference Client), tool execution against a workspace-sandboxed tool
// registry, and observation, until the planner emits a final answer
// (spec.md §4.12).
package codechat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/orchestrator/internal/codechat/tools"
	"github.com/tutu-network/orchestrator/internal/domain"
)

// ModelCaller generates one completion from a named model.
type ModelCaller interface {
	Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error)
}

// ModelSelector picks the model instance the planner routes to.
type ModelSelector interface {
	Select(tier domain.Tier) (*domain.DiscoveredModel, error)
}

// EventPublisher is the narrow Event Bus API the agent depends on.
type EventPublisher interface {
	Publish(e domain.SystemEvent)
}

// Config tunes the loop's defaults.
type Config struct {
	PlanningTier        domain.Tier
	MaxPromptTokens     int
	MaxIterations       int
	PlanningTemperature float64
	ConfirmationTimeout time.Duration
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		PlanningTier:        domain.TierBalanced,
		MaxPromptTokens:     2048,
		MaxIterations:       10,
		PlanningTemperature: 0.7,
		ConfirmationTimeout: 5 * time.Minute,
	}
}

// Options wires an Agent's collaborators.
type Options struct {
	Config   Config
	Caller   ModelCaller
	Selector ModelSelector
	Tools    *tools.Registry
	Events   EventPublisher
}

// Agent runs ReAct loops for Code-Chat sessions.
type Agent struct {
	cfg      Config
	caller   ModelCaller
	selector ModelSelector
	tools    *tools.Registry
	events   EventPublisher

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs an Agent.
func New(opts Options) *Agent {
	cfg := opts.Config
	if cfg.MaxIterations == 0 {
		cfg = DefaultConfig()
	}
	return &Agent{
		cfg:      cfg,
		caller:   opts.Caller,
		selector: opts.Selector,
		tools:    opts.Tools,
		events:   opts.Events,
		sessions: make(map[string]*session),
	}
}

// session tracks one in-flight ReAct loop's cancellation and pending
// confirmations.
type session struct {
	mu        sync.Mutex
	cancelled bool
	cancelCh  chan struct{}
	pending   map[string]chan bool
}

func newSession() *session {
	return &session{cancelCh: make(chan struct{}), pending: make(map[string]chan bool)}
}

func (s *session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelled {
		s.cancelled = true
		close(s.cancelCh)
	}
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *session) registerPending(actionID string) chan bool {
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.pending[actionID] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) confirm(actionID string, approved bool) bool {
	s.mu.Lock()
	ch, ok := s.pending[actionID]
	if ok {
		delete(s.pending, actionID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- approved
	return true
}

func (a *Agent) startSession(id string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sess, ok := a.sessions[id]; ok {
		return sess
	}
	sess := newSession()
	a.sessions[id] = sess
	return sess
}

func (a *Agent) endSession(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

// Cancel flags sessionID's loop for cancellation; it is observed at
// the next iteration boundary or while awaiting a confirmation.
func (a *Agent) Cancel(sessionID string) bool {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	sess.cancel()
	return true
}

// Confirm approves or rejects a pending confirmable tool invocation.
func (a *Agent) Confirm(sessionID, actionID string, approved bool) bool {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	return sess.confirm(actionID, approved)
}

// requiresConfirmationByDefault names the tools that mutate workspace or repo
// state and therefore pause for an explicit confirm/reject signal.
var requiresConfirmationByDefault = map[string]bool{
	"write_file":  true,
	"delete_file": true,
	"git_commit":  true,
}

// Run executes one ReAct loop to completion, cancellation, or a
// maximum-iterations error.
func (a *Agent) Run(ctx context.Context, req domain.CodeChatRequest) (domain.CodeChatResult, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = a.cfg.MaxIterations
	}

	sess := a.startSession(sessionID)
	defer a.endSession(sessionID)

	var steps []domain.ReActStep
	for iter := 1; iter <= maxIter; iter++ {
		if sess.isCancelled() {
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentCancelled, Steps: steps, Iterations: iter - 1}, domain.ErrSessionCancelled
		}

		model, err := a.selector.Select(a.cfg.PlanningTier)
		if err != nil {
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentError, Steps: steps, Iterations: iter - 1}, fmt.Errorf("select planning model: %w", err)
		}

		prompt := a.buildPrompt(req.Query, steps)
		response, err := a.caller.Generate(ctx, model.ModelID, prompt, a.cfg.MaxPromptTokens, a.cfg.PlanningTemperature)
		if err != nil {
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentError, Steps: steps, Iterations: iter - 1}, fmt.Errorf("%w: planning call failed: %v", domain.ErrGenerationFailed, err)
		}

		thought, call, answer, ok := parseResponse(response)
		if !ok {
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentError, Steps: steps, Iterations: iter}, fmt.Errorf("failed to parse planner response")
		}
		if answer != "" {
			return domain.CodeChatResult{SessionID: sessionID, Answer: answer, State: domain.AgentCompleted, Steps: steps, Iterations: iter}, nil
		}

		tool, found := a.tools.Get(call.Tool)
		if !found {
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentError, Steps: steps, Iterations: iter}, fmt.Errorf("%w: %s", domain.ErrUnknownTool, call.Tool)
		}

		observation, err := a.executeStep(ctx, sess, sessionID, iter, tool, call)
		if err != nil && (err == domain.ErrSessionCancelled || err == ctx.Err()) {
			steps = append(steps, domain.ReActStep{StepNumber: iter, Thought: thought, Action: &call, Observation: observation, Timestamp: time.Now()})
			return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentCancelled, Steps: steps, Iterations: iter}, domain.ErrSessionCancelled
		}

		steps = append(steps, domain.ReActStep{StepNumber: iter, Thought: thought, Action: &call, Observation: observation, Timestamp: time.Now()})
	}

	return domain.CodeChatResult{SessionID: sessionID, State: domain.AgentError, Steps: steps, Iterations: maxIter}, fmt.Errorf("maximum iterations (%d) reached without an answer", maxIter)
}

// executeStep runs the confirmation gate (if required) and then the
// tool itself, returning a human-readable observation string.
func (a *Agent) executeStep(ctx context.Context, sess *session, sessionID string, iter int, tool tools.Tool, call domain.ToolCall) (string, error) {
	if tool.RequiresConfirmation() {
		actionID := fmt.Sprintf("%s_%d", sessionID, iter)
		a.publish(domain.EventCodeChatActionPending, domain.SeverityInfo, fmt.Sprintf("awaiting confirmation for %s", tool.Name()), map[string]interface{}{
			"sessionId": sessionID, "actionId": actionID, "tool": tool.Name(), "args": call.Args,
		})
		approved, err := a.awaitConfirmation(ctx, sess, actionID)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), err
		}
		if !approved {
			return fmt.Sprintf("Error: %v", domain.ErrConfirmationRejected), nil
		}
	}

	result, err := a.tools.Execute(ctx, call)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	if !result.Success {
		return fmt.Sprintf("Error: %s", result.Error), nil
	}
	if result.Output == "" {
		return "Tool executed successfully", nil
	}
	return result.Output, nil
}

func (a *Agent) awaitConfirmation(ctx context.Context, sess *session, actionID string) (bool, error) {
	ch := sess.registerPending(actionID)
	timer := time.NewTimer(a.cfg.ConfirmationTimeout)
	defer timer.Stop()
	select {
	case approved := <-ch:
		return approved, nil
	case <-sess.cancelCh:
		return false, domain.ErrSessionCancelled
	case <-timer.C:
		return false, domain.ErrConfirmationTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *Agent) publish(t domain.EventType, sev domain.Severity, msg string, metadata map[string]interface{}) {
	if a.events == nil {
		return
	}
	a.events.Publish(domain.SystemEvent{Timestamp: time.Now(), Type: t, Message: domain.TruncateMessage(msg), Severity: sev, Metadata: metadata})
}

const systemPreamble = `You are an expert coding assistant with access to tools.

Respond in EXACTLY this format:

For taking an action:
Thought: [your reasoning]
Action: tool_name(arg1="value1", arg2="value2")

For a final answer:
Thought: [summary of what was done]
Answer: [complete response to the user]

Rules:
1. Always start with a Thought.
2. File paths are relative to the workspace root.
3. Read a file before modifying it.
4. Only use the tools listed below, and specify every required parameter.
`

func (a *Agent) buildPrompt(query string, steps []domain.ReActStep) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\nAvailable tools:\n")
	for _, t := range a.tools.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
		schema := t.Schema()
		if len(schema.Properties) > 0 {
			fmt.Fprintf(&b, "  parameters: %s\n", formatSchema(schema))
		}
		if requiresConfirmationByDefault[t.Name()] {
			b.WriteString("  requires user confirmation\n")
		}
	}

	fmt.Fprintf(&b, "\n## User Query\n%s\n", query)

	if len(steps) > 0 {
		b.WriteString("\n## Previous Steps\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "Thought: %s\n", s.Thought)
			if s.Action != nil {
				fmt.Fprintf(&b, "Action: %s(%s)\n", s.Action.Tool, formatArgs(s.Action.Args))
			}
			obs := s.Observation
			if len(obs) > 500 {
				obs = obs[:500] + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "Observation: %s\n\n", obs)
		}
	}

	b.WriteString("What should we do next? Provide a Thought and then either an Action or final Answer.")
	return b.String()
}

func formatSchema(s tools.Schema) string {
	parts := make([]string, 0, len(s.Properties))
	for name, typ := range s.Properties {
		parts = append(parts, fmt.Sprintf("%s: %s", name, typ))
	}
	return strings.Join(parts, ", ")
}

func formatArgs(args map[string]string) string {
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return strings.Join(parts, ", ")
}

var (
	thoughtPattern = regexp.MustCompile(`(?is)Thought:\s*(.+?)(?:\n(?:Action|Answer):|$)`)
	answerPattern  = regexp.MustCompile(`(?is)Answer:\s*(.+)$`)
	actionPattern  = regexp.MustCompile(`(?i)Action:\s*(\w+)\((.*?)\)`)
	argPattern     = regexp.MustCompile(`(\w+)\s*=\s*"([^"]*)"`)
)

// parseResponse extracts the planner's Thought plus either an Action or
// a final Answer. ok is false when no Thought is found, or when a
// Thought comes with neither an Action nor an Answer.
func parseResponse(response string) (thought string, call domain.ToolCall, answer string, ok bool) {
	if m := thoughtPattern.FindStringSubmatch(response); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if thought == "" {
		return "", domain.ToolCall{}, "", false
	}

	if m := answerPattern.FindStringSubmatch(response); m != nil {
		return thought, domain.ToolCall{}, strings.TrimSpace(m[1]), true
	}

	if m := actionPattern.FindStringSubmatch(response); m != nil {
		return thought, domain.ToolCall{Tool: m[1], Args: parseArgs(m[2])}, "", true
	}

	return thought, domain.ToolCall{}, "", false
}

func parseArgs(argsStr string) map[string]string {
	args := make(map[string]string)
	for _, m := range argPattern.FindAllStringSubmatch(argsStr, -1) {
		args[m[1]] = m[2]
	}
	return args
}

// NewDefaultRegistry wires the four built-in tool families, sandboxed
// to workspaceRoot (spec.md §12 original-source supplement).
func NewDefaultRegistry(workspaceRoot string) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.ReadFileTool{Root: workspaceRoot})
	r.Register(tools.WriteFileTool{Root: workspaceRoot})
	r.Register(tools.DeleteFileTool{Root: workspaceRoot})
	r.Register(tools.ListDirectoryTool{Root: workspaceRoot})
	r.Register(tools.GrepFilesTool{Root: workspaceRoot})
	r.Register(tools.FindFilesTool{Root: workspaceRoot})
	r.Register(tools.GitStatusTool{Root: workspaceRoot})
	r.Register(tools.GitDiffTool{Root: workspaceRoot})
	r.Register(tools.GitLogTool{Root: workspaceRoot})
	r.Register(tools.GitCommitTool{Root: workspaceRoot})
	r.Register(tools.FindDefinitionTool{Root: workspaceRoot})
	r.Register(tools.FindReferencesTool{Root: workspaceRoot})
	return r
}

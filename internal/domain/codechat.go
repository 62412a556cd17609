package domain

import "time"

// AgentState enumerates the Code-Chat ReAct loop's state machine
// (spec.md §4.12): PLANNING -> EXECUTING -> OBSERVING -> (PLANNING |
// COMPLETED | ERROR | CANCELLED).
type AgentState string

const (
	AgentPlanning  AgentState = "PLANNING"
	AgentExecuting AgentState = "EXECUTING"
	AgentObserving AgentState = "OBSERVING"
	AgentCompleted AgentState = "COMPLETED"
	AgentError     AgentState = "ERROR"
	AgentCancelled AgentState = "CANCELLED"
)

// ToolCall is a parsed "Action: tool(args)" line from the planner's
// response.
type ToolCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// ToolResult is what a tool invocation returns to the loop's
// OBSERVING phase.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReActStep records one planning/acting/observing cycle for transcript
// assembly and for re-feeding history into the next planning prompt.
type ReActStep struct {
	StepNumber  int        `json:"stepNumber"`
	Thought     string     `json:"thought"`
	Action      *ToolCall  `json:"action,omitempty"`
	Observation string     `json:"observation,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// CodeChatRequest starts one ReAct loop run.
type CodeChatRequest struct {
	Query         string `json:"query"`
	WorkspaceRoot string `json:"workspaceRoot"`
	SessionID     string `json:"sessionId,omitempty"`
	MaxIterations int    `json:"maxIterations"`
}

// CodeChatResult is the loop's terminal outcome.
type CodeChatResult struct {
	SessionID  string      `json:"sessionId"`
	Answer     string      `json:"answer,omitempty"`
	State      AgentState  `json:"state"`
	Steps      []ReActStep `json:"steps"`
	Iterations int         `json:"iterations"`
}

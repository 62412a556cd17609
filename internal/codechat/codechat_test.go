package codechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/codechat/tools"
	"github.com/tutu-network/orchestrator/internal/domain"
)

type scriptedCaller struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (c *scriptedCaller) Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.responses) {
		return "", errors.New("scriptedCaller: no more scripted responses")
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

type fixedSelector struct{ model *domain.DiscoveredModel }

func (s fixedSelector) Select(tier domain.Tier) (*domain.DiscoveredModel, error) {
	if s.model == nil {
		return nil, domain.ErrNoModelsAvailable
	}
	return s.model, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SystemEvent
}

func (p *recordingPublisher) Publish(e domain.SystemEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testModel() *domain.DiscoveredModel {
	return &domain.DiscoveredModel{ModelID: "planner-1", Enabled: true, AssignedTier: domain.TierBalanced}
}

func TestRun_AnswersDirectly(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		"Thought: I can answer directly.\nAnswer: The project looks fine.",
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
	})

	result, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "how's the project?", WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != domain.AgentCompleted {
		t.Fatalf("expected AgentCompleted, got %s", result.State)
	}
	if result.Answer != "The project looks fine." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Steps) != 0 {
		t.Fatalf("expected no tool steps, got %d", len(result.Steps))
	}
}

func TestRun_ExecutesToolThenAnswers(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: I should list the workspace.
Action: list_directory(path="")`,
		"Thought: Nothing here yet.\nAnswer: The workspace is empty.",
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
	})

	result, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "what's in here?", WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != domain.AgentCompleted {
		t.Fatalf("expected AgentCompleted, got %s", result.State)
	}
	if len(result.Steps) != 1 || result.Steps[0].Action.Tool != "list_directory" {
		t.Fatalf("expected one list_directory step, got %+v", result.Steps)
	}
}

func TestRun_UnparseableResponseErrors(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{"I refuse to follow the format."}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
	})

	_, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "q", WorkspaceRoot: root})
	if err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestRun_MaxIterationsExhausted(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: look around.
Action: list_directory(path="")`,
		`Thought: look again.
Action: list_directory(path="")`,
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
	})

	_, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "q", WorkspaceRoot: root, MaxIterations: 2})
	if err == nil || !strings.Contains(err.Error(), "maximum iterations") {
		t.Fatalf("expected max-iterations error, got %v", err)
	}
}

func TestRun_ConfirmableToolWaitsForApproval(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: write the file.
Action: write_file(path="out.txt", content="hi")`,
		"Thought: done.\nAnswer: Wrote the file.",
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
		Config:   Config{MaxIterations: 5, ConfirmationTimeout: 2 * time.Second, PlanningTier: domain.TierBalanced, MaxPromptTokens: 512, PlanningTemperature: 0.7},
	})

	var sessionID string
	done := make(chan struct{})
	var result domain.CodeChatResult
	var runErr error
	go func() {
		result, runErr = agent.Run(context.Background(), domain.CodeChatRequest{Query: "write a file", WorkspaceRoot: root, SessionID: "sess-1"})
		close(done)
	}()
	sessionID = "sess-1"

	confirmed := false
	for i := 0; i < 50; i++ {
		if agent.Confirm(sessionID, fmt.Sprintf("%s_1", sessionID), true) {
			confirmed = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !confirmed {
		t.Fatalf("never found a pending confirmation to approve")
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not complete after confirmation")
	}
	if runErr != nil {
		t.Fatalf("run: %v", runErr)
	}
	if result.State != domain.AgentCompleted {
		t.Fatalf("expected AgentCompleted, got %s", result.State)
	}
}

func TestRun_ConfirmationTimeout(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: delete it.
Action: delete_file(path="gone.txt")`,
		"Thought: done.\nAnswer: Handled.",
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
		Config:   Config{MaxIterations: 5, ConfirmationTimeout: 50 * time.Millisecond, PlanningTier: domain.TierBalanced, MaxPromptTokens: 512, PlanningTemperature: 0.7},
	})

	result, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "delete it", WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Steps) != 1 || !strings.Contains(result.Steps[0].Observation, "timed out") {
		t.Fatalf("expected a timeout observation, got %+v", result.Steps)
	}
}

func TestCancel_StopsLoopBeforeNextIteration(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: look around.
Action: list_directory(path="")`,
		"Thought: done.\nAnswer: unreachable",
	}}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
	})

	sess := agent.startSession("cancel-me")
	_ = sess
	agent.Cancel("cancel-me")

	result, err := agent.Run(context.Background(), domain.CodeChatRequest{Query: "q", WorkspaceRoot: root, SessionID: "cancel-me"})
	if !errors.Is(err, domain.ErrSessionCancelled) {
		t.Fatalf("expected ErrSessionCancelled, got %v", err)
	}
	if result.State != domain.AgentCancelled {
		t.Fatalf("expected AgentCancelled, got %s", result.State)
	}
}

func TestParseResponse_Answer(t *testing.T) {
	thought, _, answer, ok := parseResponse("Thought: simple.\nAnswer: 42")
	if !ok || thought != "simple." || answer != "42" {
		t.Fatalf("unexpected parse: thought=%q answer=%q ok=%v", thought, answer, ok)
	}
}

func TestParseResponse_Action(t *testing.T) {
	thought, call, answer, ok := parseResponse(`Thought: need to read.
Action: read_file(path="main.go")`)
	if !ok || answer != "" {
		t.Fatalf("expected an action, not an answer: %q", answer)
	}
	if thought != "need to read." {
		t.Fatalf("unexpected thought: %q", thought)
	}
	if call.Tool != "read_file" || call.Args["path"] != "main.go" {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestParseResponse_Unparseable(t *testing.T) {
	_, _, _, ok := parseResponse("no structure here at all")
	if ok {
		t.Fatalf("expected parse failure")
	}
}

func TestAgent_PublishesActionPendingEvent(t *testing.T) {
	root := t.TempDir()
	caller := &scriptedCaller{responses: []string{
		`Thought: write it.
Action: write_file(path="a.txt", content="x")`,
	}}
	pub := &recordingPublisher{}
	agent := New(Options{
		Caller:   caller,
		Selector: fixedSelector{model: testModel()},
		Tools:    NewDefaultRegistry(root),
		Events:   pub,
		Config:   Config{MaxIterations: 1, ConfirmationTimeout: 30 * time.Millisecond, PlanningTier: domain.TierBalanced, MaxPromptTokens: 512, PlanningTemperature: 0.7},
	})

	_, _ = agent.Run(context.Background(), domain.CodeChatRequest{Query: "q", WorkspaceRoot: root})

	if pub.count() == 0 {
		t.Fatalf("expected at least one published event")
	}
}

var _ tools.Tool = tools.ReadFileTool{}

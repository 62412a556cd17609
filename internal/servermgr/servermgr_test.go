package servermgr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

func TestExternalMode_StartProbesHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr := splitHostPort(t, srv.URL)
	port, _ := strconv.Atoi(portStr)

	mgr := New(RuntimeSettings{External: true, ExternalBaseHost: host})
	model := &domain.DiscoveredModel{ModelID: "m1", Port: &port}

	proc, err := mgr.Start(context.Background(), "m1", model)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !proc.IsExternal || !proc.IsReady {
		t.Fatalf("expected external+ready process, got %+v", proc)
	}

	summary := mgr.StatusSummary()
	if summary.Total != 1 || summary.Active != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestExternalMode_StartReturnsTrackedOnSecondCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	host, portStr := splitHostPort(t, srv.URL)
	port, _ := strconv.Atoi(portStr)

	mgr := New(RuntimeSettings{External: true, ExternalBaseHost: host})
	model := &domain.DiscoveredModel{ModelID: "m1", Port: &port}

	first, err := mgr.Start(context.Background(), "m1", model)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := mgr.Start(context.Background(), "m1", model)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if first != second {
		t.Fatalf("expected same tracked process returned on repeat start")
	}
}

func TestStart_NoPortFails(t *testing.T) {
	mgr := New(RuntimeSettings{})
	model := &domain.DiscoveredModel{ModelID: "m1"}
	_, err := mgr.Start(context.Background(), "m1", model)
	if err == nil {
		t.Fatalf("expected error for model without a port")
	}
}

func TestStop_UntrackedReturnsError(t *testing.T) {
	mgr := New(RuntimeSettings{})
	if err := mgr.Stop("nope", time.Second); err == nil {
		t.Fatalf("expected error stopping untracked server")
	}
}

func TestStop_ExternalJustUntracksWithoutKill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	host, portStr := splitHostPort(t, srv.URL)
	port, _ := strconv.Atoi(portStr)

	mgr := New(RuntimeSettings{External: true, ExternalBaseHost: host})
	model := &domain.DiscoveredModel{ModelID: "m1", Port: &port}
	if _, err := mgr.Start(context.Background(), "m1", model); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Stop("m1", time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if mgr.StatusSummary().Total != 0 {
		t.Fatalf("expected server untracked after stop")
	}
}

func TestRingBuffer_KeepsOnlyTail(t *testing.T) {
	b := newRingBuffer(10)
	b.WriteString("0123456789ABCDEF")
	if got := b.String(); len(got) != 10 || got != "6789ABCDEF" {
		t.Fatalf("ring buffer tail = %q, want last 10 bytes", got)
	}
}

func TestWaitForReadiness_ReadySignalWins(t *testing.T) {
	earlyExit := make(chan error, 1)
	readyCh := make(chan error, 1)
	readyCh <- nil
	if err := waitForReadiness("http://127.0.0.1:0", time.Second, earlyExit, readyCh); err != nil {
		t.Fatalf("expected nil error on ready signal, got %v", err)
	}
}

func TestWaitForReadiness_CriticalSignalFails(t *testing.T) {
	earlyExit := make(chan error, 1)
	readyCh := make(chan error, 1)
	readyCh <- domain.ErrStartupFailed
	if err := waitForReadiness("http://127.0.0.1:0", time.Second, earlyExit, readyCh); err == nil {
		t.Fatalf("expected error on critical signal")
	}
}

func TestWaitForReadiness_TimeoutIsOptimistic(t *testing.T) {
	earlyExit := make(chan error, 1)
	readyCh := make(chan error, 1)
	if err := waitForReadiness("http://127.0.0.1:0", 10*time.Millisecond, earlyExit, readyCh); err != nil {
		t.Fatalf("expected optimistic nil error on timeout, got %v", err)
	}
}

func splitHostPort(t *testing.T, url string) (string, string) {
	t.Helper()
	trimmed := strings.TrimPrefix(url, "http://")
	parts := strings.SplitN(trimmed, ":", 2)
	if len(parts) != 2 {
		t.Fatalf("unexpected test server url: %s", url)
	}
	return parts[0], parts[1]
}

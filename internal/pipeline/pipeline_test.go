package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jobscout-dev/jobscout/internal/agent"
	"github.com/jobscout-dev/jobscout/internal/store"
)

type fakeJobs struct {
	mu      sync.Mutex
	pending []store.PendingJob
	fetches int
	updates []store.AgentResponseUpdate
	saveErr error
}

func (f *fakeJobs) FetchUnprocessed(ctx context.Context) ([]store.PendingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.pending, nil
}

func (f *fakeJobs) UpdateAgentResponses(ctx context.Context, updates []store.AgentResponseUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates...)
	return f.saveErr
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, description string) map[string]agent.Result {
	f.mu.Lock()
	f.calls = append(f.calls, description)
	f.mu.Unlock()

	response := "No"
	if strings.Contains(description, "remote") {
		response = "Yes"
	}
	return map[string]agent.Result{
		"IsRemote": {"response": &response},
	}
}

func TestRunOnceEvaluatesEachUniqueDescriptionOnce(t *testing.T) {
	jobs := &fakeJobs{
		pending: []store.PendingJob{
			{ID: 1, Description: "remote Go engineer"},
			{ID: 2, Description: "remote Go engineer"},
			{ID: 3, Description: "on-site accountant"},
		},
	}
	evaluator := &fakeEvaluator{}

	p := New(jobs, evaluator, Config{Workers: 4}, zap.NewNop())

	updated, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updated records, got %d", updated)
	}
	if len(evaluator.calls) != 2 {
		t.Fatalf("expected 2 evaluations for 2 unique descriptions, got %d", len(evaluator.calls))
	}
	if len(jobs.updates) != 3 {
		t.Fatalf("expected 3 stored updates, got %d", len(jobs.updates))
	}
}

func TestRunOnceReassociatesVerdictsPerRecord(t *testing.T) {
	jobs := &fakeJobs{
		pending: []store.PendingJob{
			{ID: 10, Description: "remote Go engineer"},
			{ID: 11, Description: "on-site accountant"},
			{ID: 12, Description: "remote Go engineer"},
		},
	}

	p := New(jobs, &fakeEvaluator{}, Config{}, zap.NewNop())

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	responses := make(map[int64]string)
	for _, upd := range jobs.updates {
		var decoded map[string]map[string]*string
		if err := json.Unmarshal([]byte(upd.AgentResponse), &decoded); err != nil {
			t.Fatalf("stored response for %d is not valid JSON: %v", upd.ID, err)
		}
		field := decoded["IsRemote"]["response"]
		if field == nil {
			t.Fatalf("stored response for %d missing response field", upd.ID)
		}
		responses[upd.ID] = *field
	}

	if responses[10] != "Yes" || responses[12] != "Yes" {
		t.Fatalf("remote postings should share the Yes verdict, got %v", responses)
	}
	if responses[11] != "No" {
		t.Fatalf("on-site posting should get No, got %q", responses[11])
	}
}

func TestRunOnceWithNothingPending(t *testing.T) {
	jobs := &fakeJobs{}
	evaluator := &fakeEvaluator{}

	p := New(jobs, evaluator, Config{}, zap.NewNop())

	updated, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected no updates, got %d", updated)
	}
	if len(evaluator.calls) != 0 {
		t.Fatalf("expected no evaluations, got %d", len(evaluator.calls))
	}
}

func TestRunOncePropagatesStoreError(t *testing.T) {
	saveErr := errors.New("disk full")
	jobs := &fakeJobs{
		pending: []store.PendingJob{{ID: 1, Description: "remote Go engineer"}},
		saveErr: saveErr,
	}

	p := New(jobs, &fakeEvaluator{}, Config{}, zap.NewNop())

	if _, err := p.RunOnce(context.Background()); !errors.Is(err, saveErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	jobs := &fakeJobs{}
	p := New(jobs, &fakeEvaluator{}, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if jobs.fetches < 2 {
		t.Fatalf("expected at least 2 fetch cycles, got %d", jobs.fetches)
	}
}

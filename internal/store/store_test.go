package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"), 4, zap.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestUpsertJobsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := JobUpsert{
		PostingID:   "p-1",
		PostingURL:  "https://example.com/jobs/1",
		Title:       "Backend Engineer",
		Description: "old description",
	}
	if err := s.UpsertJobs(ctx, []JobUpsert{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.Title = "Senior Backend Engineer"
	second.Description = "new description"
	if err := s.UpsertJobs(ctx, []JobUpsert{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	records, err := s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}

	if records[0].Title != "Senior Backend Engineer" || records[0].Description != "new description" {
		t.Fatalf("expected latest descriptive fields, got %+v", records[0])
	}
}

func TestUpsertDoesNotTouchAgentResponse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := JobUpsert{PostingID: "p-1", PostingURL: "https://example.com/1", Description: "desc"}
	if err := s.UpsertJobs(ctx, []JobUpsert{job}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	update := AgentResponseUpdate{ID: records[0].ID, AgentResponse: `{"A":{"response":"Yes"}}`}
	if err := s.UpdateAgentResponses(ctx, []AgentResponseUpdate{update}); err != nil {
		t.Fatalf("update agent responses: %v", err)
	}

	// A rescrape of the same posting must not clear the verdict.
	job.Description = "updated desc"
	if err := s.UpsertJobs(ctx, []JobUpsert{job}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	records, err = s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if records[0].AgentResponse == nil || *records[0].AgentResponse != update.AgentResponse {
		t.Fatalf("agent response lost on upsert: %+v", records[0])
	}

	if records[0].Description != "updated desc" {
		t.Fatalf("descriptive field not updated: %+v", records[0])
	}
}

func TestUpsertJobsResolvesURLConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := JobUpsert{
		PostingID:   "p-1",
		PostingURL:  "https://example.com/jobs/reposted",
		Title:       "Backend Engineer",
		Description: "old description",
	}
	if err := s.UpsertJobs(ctx, []JobUpsert{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Boards sometimes reissue the same URL under a fresh posting id; that
	// must update the stored row, not fail the batch.
	reposted := JobUpsert{
		PostingID:   "p-2",
		PostingURL:  first.PostingURL,
		Title:       "Senior Backend Engineer",
		Description: "new description",
	}
	if err := s.UpsertJobs(ctx, []JobUpsert{reposted}); err != nil {
		t.Fatalf("upsert with shared url: %v", err)
	}

	records, err := s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}

	if records[0].Title != "Senior Backend Engineer" || records[0].Description != "new description" {
		t.Fatalf("expected latest descriptive fields, got %+v", records[0])
	}

	if records[0].PostingID != "p-1" {
		t.Fatalf("expected the stored posting id to survive, got %q", records[0].PostingID)
	}
}

func TestFetchRecentWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jobs := []JobUpsert{
		{PostingID: "fresh", PostingURL: "https://example.com/fresh", Description: "fresh"},
		{PostingID: "stale", PostingURL: "https://example.com/stale", Description: "stale"},
	}
	if err := s.UpsertJobs(ctx, jobs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE job_postings SET insert_timestamp = datetime('now', '-10 days') WHERE posting_id = 'stale';`,
	); err != nil {
		t.Fatalf("backdating record: %v", err)
	}

	records, err := s.FetchRecent(ctx, 7)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if len(records) != 1 || records[0].PostingID != "fresh" {
		t.Fatalf("expected only the fresh record in a 7 day window, got %+v", records)
	}

	if records[0].InsertedAt.IsZero() {
		t.Fatal("expected insert timestamp to be parsed")
	}

	records, err = s.FetchRecent(ctx, 30)
	if err != nil {
		t.Fatalf("fetch recent with wide window: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected both records in a 30 day window, got %d", len(records))
	}
}

func TestFetchRecentRejectsMalformedTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := JobUpsert{PostingID: "p-1", PostingURL: "https://example.com/1", Description: "desc"}
	if err := s.UpsertJobs(ctx, []JobUpsert{job}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE job_postings SET insert_timestamp = 'not-a-timestamp' WHERE posting_id = 'p-1';`,
	); err != nil {
		t.Fatalf("corrupting timestamp: %v", err)
	}

	if _, err := s.FetchRecent(ctx, 365); err == nil {
		t.Fatal("expected an error for a malformed insert_timestamp")
	}
}

func TestFetchUnprocessed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jobs := []JobUpsert{
		{PostingID: "p-1", PostingURL: "https://example.com/1", Description: "first"},
		{PostingID: "p-2", PostingURL: "https://example.com/2", Description: "second"},
		{PostingID: "p-3", PostingURL: "https://example.com/3", Description: "third"},
	}
	if err := s.UpsertJobs(ctx, jobs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	var processedID int64
	for _, record := range records {
		if record.PostingID == "p-2" {
			processedID = record.ID
		}
	}

	if err := s.UpdateAgentResponses(ctx, []AgentResponseUpdate{{ID: processedID, AgentResponse: `{}`}}); err != nil {
		t.Fatalf("update agent responses: %v", err)
	}

	pending, err := s.FetchUnprocessed(ctx)
	if err != nil {
		t.Fatalf("fetch unprocessed: %v", err)
	}

	if len(pending) != 2 {
		t.Fatalf("expected 2 unprocessed records, got %d", len(pending))
	}

	for _, job := range pending {
		if job.ID == processedID {
			t.Fatalf("processed record returned as unprocessed: %+v", job)
		}
	}
}

func TestUpdateAppliedStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertJobs(ctx, []JobUpsert{{PostingID: "p-1", PostingURL: "https://example.com/1", Description: "d"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if records[0].Applied {
		t.Fatal("expected applied to default to false")
	}

	if err := s.UpdateAppliedStatus(ctx, []AppliedUpdate{{ID: records[0].ID, Applied: true}}); err != nil {
		t.Fatalf("update applied: %v", err)
	}

	records, err = s.FetchRecent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}

	if !records[0].Applied {
		t.Fatal("expected applied to be true after update")
	}
}

func TestConcurrentAgentResponseUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 5

	var jobs []JobUpsert
	for i := 0; i < workers*perWorker; i++ {
		jobs = append(jobs, JobUpsert{
			PostingID:   fmt.Sprintf("p-%d", i),
			PostingURL:  fmt.Sprintf("https://example.com/%d", i),
			Description: fmt.Sprintf("description %d", i),
		})
	}
	if err := s.UpsertJobs(ctx, jobs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, err := s.FetchUnprocessed(ctx)
	if err != nil {
		t.Fatalf("fetch unprocessed: %v", err)
	}

	if len(pending) != workers*perWorker {
		t.Fatalf("expected %d pending records, got %d", workers*perWorker, len(pending))
	}

	// Disjoint batches from concurrent workers must all land.
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		batch := make([]AgentResponseUpdate, 0, perWorker)
		for _, job := range pending[w*perWorker : (w+1)*perWorker] {
			batch = append(batch, AgentResponseUpdate{
				ID:            job.ID,
				AgentResponse: fmt.Sprintf(`{"worker":{"response":"%d"}}`, w),
			})
		}

		wg.Add(1)
		go func(batch []AgentResponseUpdate) {
			defer wg.Done()
			if err := s.UpdateAgentResponses(ctx, batch); err != nil {
				errs <- err
			}
		}(batch)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent update failed: %v", err)
	}

	left, err := s.FetchUnprocessed(ctx)
	if err != nil {
		t.Fatalf("fetch unprocessed: %v", err)
	}

	if len(left) != 0 {
		t.Fatalf("expected all records processed, %d left", len(left))
	}
}

func TestIsContention(t *testing.T) {
	t.Parallel()

	if !isContention(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected locked error to classify as contention")
	}

	if isContention(errors.New("UNIQUE constraint failed: job_postings.posting_url")) {
		t.Fatal("constraint violation must not classify as contention")
	}
}

func TestWriteRetryDropsBatchAfterContention(t *testing.T) {
	s := openTestStore(t)
	s.maxAttempts = 3
	s.retryDelay = 0

	attempts := 0
	err := s.withWriteRetry(context.Background(), "test op", func(*sql.Tx) error {
		attempts++
		return errors.New("database is locked")
	})

	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

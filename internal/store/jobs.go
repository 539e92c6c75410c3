package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timestampLayout matches sqlite's datetime('now') text representation.
const timestampLayout = "2006-01-02 15:04:05"

// JobUpsert carries the descriptive fields a scraping producer knows about.
type JobUpsert struct {
	PostingID      string `yaml:"posting_id" json:"posting_id"`
	PostingURL     string `yaml:"posting_url" json:"posting_url"`
	Title          string `yaml:"job_title" json:"job_title"`
	Description    string `yaml:"description" json:"description"`
	Experience     string `yaml:"experience" json:"experience"`
	EmploymentType string `yaml:"employment_type" json:"employment_type"`
	Industries     string `yaml:"industries" json:"industries"`
}

// PendingJob is a record awaiting evaluation.
type PendingJob struct {
	ID          int64
	Description string
}

// JobRecord is the full persisted shape of one posting.
type JobRecord struct {
	ID             int64
	PostingID      string
	PostingURL     string
	Title          string
	Description    string
	Experience     string
	EmploymentType string
	Industries     string
	AgentResponse  *string
	Applied        bool
	InsertedAt     time.Time
}

// AgentResponseUpdate attaches a JSON-encoded verdict map to a record.
type AgentResponseUpdate struct {
	ID            int64
	AgentResponse string
}

// AppliedUpdate toggles the applied flag for a record.
type AppliedUpdate struct {
	ID      int64
	Applied bool
}

// UpsertJobs inserts the records, overwriting the descriptive fields of any
// posting already present under the same posting_id or posting_url. Scraped
// boards occasionally reissue the same URL under a fresh posting_id, so both
// unique keys resolve to an update. agent_response and applied are never
// touched by this path.
func (s *Store) UpsertJobs(ctx context.Context, jobs []JobUpsert) error {
	if len(jobs) == 0 {
		return nil
	}

	return s.withWriteRetry(ctx, "upsert jobs", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO job_postings (posting_id, posting_url, job_title, description, experience, employment_type, industries)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(posting_id) DO UPDATE SET
  job_title = excluded.job_title,
  description = excluded.description,
  experience = excluded.experience,
  employment_type = excluded.employment_type,
  industries = excluded.industries
ON CONFLICT(posting_url) DO UPDATE SET
  job_title = excluded.job_title,
  description = excluded.description,
  experience = excluded.experience,
  employment_type = excluded.employment_type,
  industries = excluded.industries;`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, job := range jobs {
			if _, err := stmt.ExecContext(ctx,
				job.PostingID, job.PostingURL, job.Title, job.Description,
				job.Experience, job.EmploymentType, job.Industries,
			); err != nil {
				return fmt.Errorf("posting %q: %w", job.PostingID, err)
			}
		}
		return nil
	})
}

// FetchUnprocessed returns records with a description but no agent response
// yet.
func (s *Store) FetchUnprocessed(ctx context.Context) ([]PendingJob, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, description FROM job_postings
WHERE description IS NOT NULL AND description != '' AND agent_response IS NULL;`)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}
	defer rows.Close()

	var out []PendingJob
	for rows.Next() {
		var job PendingJob
		if err := rows.Scan(&job.ID, &job.Description); err != nil {
			return nil, fmt.Errorf("fetch unprocessed: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// FetchRecent returns postings inserted within the last windowDays days.
// Scrapers use it to deduplicate against recently seen postings.
func (s *Store) FetchRecent(ctx context.Context, windowDays int) ([]JobRecord, error) {
	if windowDays <= 0 {
		windowDays = 1
	}

	query := fmt.Sprintf(`
SELECT id, posting_id, posting_url, job_title, description, experience, employment_type, industries, agent_response, applied, insert_timestamp
FROM job_postings
WHERE insert_timestamp >= datetime('now', '-%d days');`, windowDays)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		record, err := scanJobRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch recent: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func scanJobRecord(rows *sql.Rows) (JobRecord, error) {
	var (
		record   JobRecord
		title    sql.NullString
		desc     sql.NullString
		exp      sql.NullString
		empType  sql.NullString
		inds     sql.NullString
		response sql.NullString
		inserted string
	)

	if err := rows.Scan(
		&record.ID, &record.PostingID, &record.PostingURL, &title, &desc,
		&exp, &empType, &inds, &response, &record.Applied, &inserted,
	); err != nil {
		return JobRecord{}, err
	}

	record.Title = title.String
	record.Description = desc.String
	record.Experience = exp.String
	record.EmploymentType = empType.String
	record.Industries = inds.String
	if response.Valid {
		record.AgentResponse = &response.String
	}
	ts, err := time.Parse(timestampLayout, inserted)
	if err != nil {
		return JobRecord{}, fmt.Errorf("record %d: parsing insert_timestamp %q: %w", record.ID, inserted, err)
	}
	record.InsertedAt = ts

	return record, nil
}

// UpdateAgentResponses stores the verdict maps for the given records as one
// batch. Exactly-once enrichment is the caller's concern; this path only keys
// by record id.
func (s *Store) UpdateAgentResponses(ctx context.Context, updates []AgentResponseUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return s.withWriteRetry(ctx, "update agent responses", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE job_postings SET agent_response = ? WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, update := range updates {
			if _, err := stmt.ExecContext(ctx, update.AgentResponse, update.ID); err != nil {
				return fmt.Errorf("record %d: %w", update.ID, err)
			}
		}
		return nil
	})
}

// UpdateAppliedStatus toggles the applied flag for the given records as one
// batch.
func (s *Store) UpdateAppliedStatus(ctx context.Context, updates []AppliedUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return s.withWriteRetry(ctx, "update applied status", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE job_postings SET applied = ? WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, update := range updates {
			if _, err := stmt.ExecContext(ctx, update.Applied, update.ID); err != nil {
				return fmt.Errorf("record %d: %w", update.ID, err)
			}
		}
		return nil
	})
}

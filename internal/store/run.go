package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// RunKind is the CLI command that produced a run.
type RunKind string

const (
	RunKindExtract RunKind = "extract"
	RunKindTrim    RunKind = "trim"
	RunKindPackage RunKind = "package"
)

// RunStatus is the final state of a run.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// Run is one recorded CLI run.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Source    string          `json:"source"`
	Output    string          `json:"output"`
	Options   json.RawMessage `json:"options"`
	Samples   int             `json:"samples"`
	Labels    int             `json:"labels"`
	Status    RunStatus       `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunLabel is the per-label accounting of a run.
type RunLabel struct {
	Index     int    `json:"index"`
	Sign      string `json:"sign"`
	Available int    `json:"available"`
	Tried     int    `json:"tried"`
	Collected int    `json:"collected"`
	Skipped   int    `json:"skipped"`
}

// RunRepository provides access to run history.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a run and its labels in a single transaction. An empty ID
// is replaced with a new UUID.
func (r *RunRepository) Create(run *Run, labels []RunLabel) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunStatusOK
	}
	if len(run.Options) == 0 {
		run.Options = json.RawMessage("{}")
	}
	run.CreatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, kind, source, output, options, samples, labels, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Source, run.Output, string(run.Options),
		run.Samples, run.Labels, string(run.Status), run.Error, run.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO run_labels (run_id, label_index, sign, available, tried, collected, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.Exec(run.ID, l.Index, l.Sign, l.Available, l.Tried, l.Collected, l.Skipped); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const runColumns = `id, kind, source, output, options, samples, labels, status, error, created_at`

func scanRun(scan func(...any) error) (*Run, error) {
	run := &Run{}
	var kind, status, options string
	err := scan(&run.ID, &kind, &run.Source, &run.Output, &options,
		&run.Samples, &run.Labels, &status, &run.Error, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Kind = RunKind(kind)
	run.Status = RunStatus(status)
	run.Options = json.RawMessage(options)
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves runs, newest first. A limit of zero or less means all.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Labels retrieves the per-label accounting of a run in label order.
func (r *RunRepository) Labels(runID string) ([]RunLabel, error) {
	rows, err := r.db.Query(
		`SELECT label_index, sign, available, tried, collected, skipped
		 FROM run_labels
		 WHERE run_id = ?
		 ORDER BY label_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []RunLabel
	for rows.Next() {
		var l RunLabel
		if err := rows.Scan(&l.Index, &l.Sign, &l.Available, &l.Tried, &l.Collected, &l.Skipped); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return labels, nil
}

// Delete removes a run and its labels.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

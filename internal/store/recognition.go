package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Recognition is one answered recognition request.
type Recognition struct {
	ID         string    `json:"id"`
	Outcome    string    `json:"outcome"`
	Label      string    `json:"label,omitempty"`
	Message    string    `json:"message"`
	Score      float64   `json:"score"`
	Handedness string    `json:"handedness,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecognitionRepository provides access to recognition history.
type RecognitionRepository struct {
	db *sql.DB
}

// Recognitions returns the recognition repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db}
}

// Create inserts a recognition. An empty ID is replaced with a new UUID.
func (r *RecognitionRepository) Create(rec *Recognition) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO recognitions (id, outcome, label, message, score, handedness, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Outcome, rec.Label, rec.Message, rec.Score, rec.Handedness, rec.CreatedAt,
	)
	return err
}

// Recent retrieves up to limit recognitions, newest first.
func (r *RecognitionRepository) Recent(limit int) ([]*Recognition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, outcome, label, message, score, handedness, created_at
		 FROM recognitions
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Recognition
	for rows.Next() {
		rec := &Recognition{}
		if err := rows.Scan(&rec.ID, &rec.Outcome, &rec.Label, &rec.Message, &rec.Score, &rec.Handedness, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// CountByLabel returns how often each label was recognized.
func (r *RecognitionRepository) CountByLabel() (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*) FROM recognitions WHERE label != '' GROUP BY label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per CLI run (extract, trim, package)
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('extract', 'trim', 'package')),
			source TEXT NOT NULL,
			output TEXT NOT NULL,
			options TEXT NOT NULL DEFAULT '{}',
			samples INTEGER NOT NULL DEFAULT 0,
			labels INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Run labels table - per-label accounting of a run
		`CREATE TABLE IF NOT EXISTS run_labels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			label_index INTEGER NOT NULL,
			sign TEXT NOT NULL,
			available INTEGER NOT NULL DEFAULT 0,
			tried INTEGER NOT NULL DEFAULT 0,
			collected INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		)`,

		// Recognitions table - every answered recognition request
		`CREATE TABLE IF NOT EXISTS recognitions (
			id TEXT PRIMARY KEY,
			outcome TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			handedness TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_run_labels_run_id ON run_labels(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recognitions_created_at ON recognitions(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Profiles table - felt color ranges and detector tuning
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			hue_min INTEGER NOT NULL CHECK(hue_min BETWEEN 0 AND 180),
			hue_max INTEGER NOT NULL CHECK(hue_max BETWEEN 0 AND 180),
			sat_min INTEGER NOT NULL CHECK(sat_min BETWEEN 0 AND 255),
			sat_max INTEGER NOT NULL CHECK(sat_max BETWEEN 0 AND 255),
			val_min INTEGER NOT NULL CHECK(val_min BETWEEN 0 AND 255),
			val_max INTEGER NOT NULL CHECK(val_max BETWEEN 0 AND 255),
			min_area REAL NOT NULL DEFAULT 1000,
			kernel_size INTEGER NOT NULL DEFAULT 5,
			builtin INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profiles_builtin ON profiles(builtin)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

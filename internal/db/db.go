package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id SERIAL PRIMARY KEY,
            patient_id INT NOT NULL,
            patient_name TEXT NOT NULL DEFAULT '',
            patient_avatar TEXT NOT NULL DEFAULT '',
            optometrist_id INT NOT NULL,
            optometrist_name TEXT NOT NULL DEFAULT '',
            optometrist_avatar TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            type TEXT NOT NULL DEFAULT 'online',
            method TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS payments (
            id SERIAL PRIMARY KEY,
            appointment_id INT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'unpaid',
            amount BIGINT NOT NULL DEFAULT 0,
            deadline TIMESTAMPTZ NOT NULL,
            invoice_id TEXT,
            proof_url TEXT,
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(appointment_id)
        );`,
		`CREATE TABLE IF NOT EXISTS consultation_rooms (
            room_id UUID PRIMARY KEY,
            appointment_id INT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(appointment_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            room_id UUID NOT NULL REFERENCES consultation_rooms(room_id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            sender_name TEXT NOT NULL DEFAULT '',
            sender_avatar TEXT NOT NULL DEFAULT '',
            text TEXT NOT NULL,
            correlation_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

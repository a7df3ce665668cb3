package database

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"leadpilot/internal/models"
)

type DB struct {
	conn *sql.DB
}

// Init opens the SQLite database, applies WAL mode, and runs migrations.
func Init(path string) *DB {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		log.Fatalf("database: failed to open: %v", err)
	}
	if err := conn.Ping(); err != nil {
		log.Fatalf("database: failed to ping: %v", err)
	}

	// Limit concurrent writers to avoid SQLITE_BUSY beyond the busy_timeout.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	db.migrate()
	log.Println("database: ready")
	return db
}

func (db *DB) migrate() {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS plans (
plan_id    TEXT PRIMARY KEY,
zoho_id    TEXT NOT NULL,
thread_key TEXT NOT NULL DEFAULT '',
action     TEXT NOT NULL,
channel    TEXT NOT NULL,
priority   INTEGER NOT NULL,
ai_notes   TEXT NOT NULL DEFAULT '',
created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_zoho ON plans(zoho_id, created_at)`,
	}

	for _, stmt := range migrations {
		if _, err := db.conn.Exec(stmt); err != nil {
			log.Fatalf("database: migration failed: %v", err)
		}
	}
}

// ─── Plan audit log ───────────────────────────────────────────────────────────

// InsertPlan records one issued action plan. The row mirrors the CRM
// write-back bag so operators can audit what was decided and when.
func (db *DB) InsertPlan(p *models.PlanRecord) error {
	_, err := db.conn.Exec(
		`INSERT INTO plans(plan_id, zoho_id, thread_key, action, channel, priority, ai_notes)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(plan_id) DO NOTHING`,
		p.PlanID, p.ZohoID, p.ThreadKey, p.Action, p.Channel, p.Priority, p.AINotes,
	)
	return err
}

// PlanExists checks if a plan id has already been recorded.
func (db *DB) PlanExists(planID string) (bool, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM plans WHERE plan_id = ?`, planID).Scan(&count)
	return count > 0, err
}

// RecentPlans returns the last n plans issued for a lead, newest first.
func (db *DB) RecentPlans(zohoID string, limit int) ([]models.PlanRecord, error) {
	rows, err := db.conn.Query(
		`SELECT plan_id, zoho_id, thread_key, action, channel, priority, ai_notes, created_at
		 FROM plans
		 WHERE zoho_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		zohoID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.PlanRecord
	for rows.Next() {
		var p models.PlanRecord
		if err := rows.Scan(&p.PlanID, &p.ZohoID, &p.ThreadKey, &p.Action, &p.Channel, &p.Priority, &p.AINotes, &p.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

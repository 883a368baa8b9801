package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		return nil, err
	}

	// Create jobs table with terminal payloads for post-eviction audit
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		job_id TEXT,
		trace_id TEXT,
		kind TEXT,
		status TEXT,
		payload TEXT,
		error TEXT,
		dur_ms REAL
	)`); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(level, code, msg string, meta map[string]interface{}) {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, _ = db.Exec(`INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		float64(time.Now().UnixNano())/1e9, level, code, msg, m)
}

func (db *DB) Job(start time.Time, jobID, traceID, kind, status, payload, errStr string, dur time.Duration) {
	_, _ = db.Exec(`INSERT INTO jobs(ts, job_id, trace_id, kind, status, payload, error, dur_ms)
		VALUES(?,?,?,?,?,?,?,?)`,
		float64(start.UnixNano())/1e9, jobID, traceID, kind, status, payload, errStr, float64(dur.Milliseconds()))
}

// Package statslog keeps a rolling SQLite history of stats-window
// snapshots (spec.md §3's statistics buckets), adapted from this
// codebase's earlier device-history database. It deliberately does NOT
// persist JIT queue contents, radio state, or the GPS time reference:
// spec.md's non-goals exclude state persistence across restarts for the
// forwarding core itself, and this package only gives operators after-
// the-fact visibility into past windows.
package statslog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection holding the stats-window history.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the stats-log database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("statslog: open: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("statslog: migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stats_windows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		rx_received INTEGER NOT NULL,
		rx_ok INTEGER NOT NULL,
		rx_bad INTEGER NOT NULL,
		rx_nocrc INTEGER NOT NULL,
		rx_forwarded INTEGER NOT NULL,
		tx_ok INTEGER NOT NULL,
		tx_fail INTEGER NOT NULL,
		pulls_sent INTEGER NOT NULL,
		pulls_acked INTEGER NOT NULL,
		beacons_sent INTEGER NOT NULL,
		beacons_rejected INTEGER NOT NULL,
		ack_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS spectral_scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		rf_chain INTEGER NOT NULL,
		freq_hz INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Window is one recorded stats-window snapshot.
type Window struct {
	ID              int64
	RecordedAt      time.Time
	RXReceived      uint32
	RXOK            uint32
	RXBad           uint32
	RXNoCRC         uint32
	RXForwarded     uint32
	TXOK            uint32
	TXFail          uint32
	PullsSent       uint32
	PullsAcked      uint32
	BeaconsSent     uint32
	BeaconsRejected uint32
	AckRate         float32
}

// InsertWindow records one completed stats window.
func (db *DB) InsertWindow(w Window) (int64, error) {
	query := `INSERT INTO stats_windows
		(rx_received, rx_ok, rx_bad, rx_nocrc, rx_forwarded, tx_ok, tx_fail,
		 pulls_sent, pulls_acked, beacons_sent, beacons_rejected, ack_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, w.RXReceived, w.RXOK, w.RXBad, w.RXNoCRC,
		w.RXForwarded, w.TXOK, w.TXFail, w.PullsSent, w.PullsAcked,
		w.BeaconsSent, w.BeaconsRejected, w.AckRate)
	if err != nil {
		return 0, fmt.Errorf("statslog: insert window: %w", err)
	}
	return result.LastInsertId()
}

// RecentWindows returns the most recently recorded windows, newest first.
func (db *DB) RecentWindows(limit int) ([]Window, error) {
	query := `SELECT id, recorded_at, rx_received, rx_ok, rx_bad, rx_nocrc, rx_forwarded,
		tx_ok, tx_fail, pulls_sent, pulls_acked, beacons_sent, beacons_rejected, ack_rate
		FROM stats_windows ORDER BY id DESC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("statslog: query windows: %w", err)
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.ID, &w.RecordedAt, &w.RXReceived, &w.RXOK, &w.RXBad,
			&w.RXNoCRC, &w.RXForwarded, &w.TXOK, &w.TXFail, &w.PullsSent,
			&w.PullsAcked, &w.BeaconsSent, &w.BeaconsRejected, &w.AckRate); err != nil {
			return nil, fmt.Errorf("statslog: scan window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// SpectralScan is one recorded spectral scan result.
type SpectralScan struct {
	ID         int64
	ScanID     string
	RFChain    uint8
	FreqHz     uint32
	RecordedAt time.Time
}

// RecentScans returns the most recently recorded spectral scans, newest
// first.
func (db *DB) RecentScans(limit int) ([]SpectralScan, error) {
	rows, err := db.conn.Query(
		`SELECT id, scan_id, rf_chain, freq_hz, recorded_at FROM spectral_scans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("statslog: query scans: %w", err)
	}
	defer rows.Close()

	var scans []SpectralScan
	for rows.Next() {
		var s SpectralScan
		if err := rows.Scan(&s.ID, &s.ScanID, &s.RFChain, &s.FreqHz, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("statslog: scan row: %w", err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// InsertSpectralScan records one completed spectral scan result.
func (db *DB) InsertSpectralScan(scanID string, rfChain uint8, freqHz uint32) error {
	_, err := db.conn.Exec(
		`INSERT INTO spectral_scans (scan_id, rf_chain, freq_hz) VALUES (?, ?, ?)`,
		scanID, rfChain, freqHz)
	if err != nil {
		return fmt.Errorf("statslog: insert spectral scan: %w", err)
	}
	return nil
}

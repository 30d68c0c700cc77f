package apfc

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerdstack/apfc/internal/logging"
)

// HistoryStore is a durable, queryable ledger backing two things the
// in-memory Blackboard cannot answer on its own:
//
//  1. the Conflict Resolver's "earliest successful-completion timestamp"
//     tie-break for duplicate-type resolution (§4.7), and
//  2. the Repair Controller's round-by-round diagnostic history, used when
//     producing the residual diagnostic summary of a failed run (§7).
//
// Modeled on the teacher's internal/store.TraceStore: a single SQLite file,
// serialized writes via a mutex (the driver itself is not safe for
// unsynchronized concurrent writers), WAL journaling for read concurrency.
type HistoryStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewHistoryStore opens (creating if absent) the SQLite-backed history
// database at path.
func NewHistoryStore(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open(sqlDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.APFCLog(logging.CategoryBlackboard).Warnw("history WAL pragma failed", "error", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.APFCLog(logging.CategoryBlackboard).Warnw("history busy_timeout pragma failed", "error", err)
	}

	h := &HistoryStore{db: db, dbPath: path}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *HistoryStore) initialize() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sst_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	atom_id TEXT NOT NULL,
	simple_name TEXT NOT NULL,
	fqn TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sst_events_fqn ON sst_events(fqn);
CREATE INDEX IF NOT EXISTS idx_sst_events_atom ON sst_events(atom_id);

CREATE TABLE IF NOT EXISTS repair_rounds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	round INTEGER NOT NULL,
	atom_id TEXT NOT NULL,
	diagnostic_code TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	file_path TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repair_rounds_atom ON repair_rounds(atom_id);
`
	_, err := h.db.Exec(schema)
	return err
}

// RecordSSTEvent appends one SST registration event.
func (h *HistoryStore) RecordSSTEvent(atomID, simpleName, fqn string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		`INSERT INTO sst_events (atom_id, simple_name, fqn, recorded_at) VALUES (?, ?, ?, ?)`,
		// Fixed-width nanoseconds so that text order of recorded_at is time order.
		atomID, simpleName, fqn, at.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	return err
}

// EarliestCompletion returns the owning atom ID whose registration of fqn
// has the earliest recorded_at, with a lexicographic tie-break on atom ID
// (§4.7 "first" definition). Returns ("", false) if fqn was never recorded.
func (h *HistoryStore) EarliestCompletion(fqn string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	row := h.db.QueryRow(
		`SELECT atom_id FROM sst_events WHERE fqn = ? ORDER BY recorded_at ASC, atom_id ASC LIMIT 1`,
		fqn,
	)
	var atomID string
	if err := row.Scan(&atomID); err != nil {
		return "", false
	}
	return atomID, true
}

// RecordRepairRound appends one round's bucketed diagnostics for an atom.
func (h *HistoryStore) RecordRepairRound(round int, atomID string, d Diagnostic, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		`INSERT INTO repair_rounds (round, atom_id, diagnostic_code, severity, message, file_path, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		round, atomID, d.Code, d.Severity, d.Message, d.File, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ResidualSummary returns, for the most recent round, up to topN atoms with
// the most diagnostics attributed to them (§7 "top N grouped by atom").
func (h *HistoryStore) ResidualSummary(topN int) (map[string]int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(`
		SELECT atom_id, COUNT(*) as cnt FROM repair_rounds
		WHERE round = (SELECT MAX(round) FROM repair_rounds)
		GROUP BY atom_id ORDER BY cnt DESC, atom_id ASC LIMIT ?`, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var atomID string
		var cnt int
		if err := rows.Scan(&atomID, &cnt); err != nil {
			return nil, err
		}
		out[atomID] = cnt
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

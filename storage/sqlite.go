package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"immojagd/models"
)

// SQLiteStore holds operational data that must survive restarts but does
// not belong in the domain store: pagination cursors, cycle records, log
// rows and control commands. It implements pagination.CursorStore and
// scraper.OpsStore.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cursors (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS scrape_cycles (
		id INTEGER PRIMARY KEY,
		number INTEGER,
		kind TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_seen INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		listings_changed INTEGER DEFAULT 0,
		geo_blocked INTEGER DEFAULT 0,
		rejected INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		cycle_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		platform TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT NOT NULL,
		params TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_logs_cycle ON scrape_logs(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Cursors (pagination.CursorStore)
// =============================================================================

func (s *SQLiteStore) GetCursor(name, defaultVal string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM cursors WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultVal, nil
	}
	if err != nil {
		return defaultVal, err
	}
	return value, nil
}

func (s *SQLiteStore) SetCursor(name, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO cursors (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now())
	return err
}

// =============================================================================
// Cycles (scraper.OpsStore)
// =============================================================================

const cycleNumberCursor = "cycle:number"

// NextCycleNumber increments and returns the monotonic cycle counter; it
// rides on the cursor table so numbering survives restarts.
func (s *SQLiteStore) NextCycleNumber() (int, error) {
	var number int
	err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM cursors WHERE name = ?`, cycleNumberCursor).Scan(&number)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	number++
	_, err = s.db.Exec(`
		INSERT INTO cursors (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		cycleNumberCursor, number, time.Now())
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (s *SQLiteStore) CreateCycle(c *models.ScrapeCycle) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_cycles (number, kind, started_at, status)
		VALUES (?, ?, ?, ?)`,
		c.Number, c.Kind, c.StartedAt, c.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateCycle(c *models.ScrapeCycle) error {
	_, err := s.db.Exec(`
		UPDATE scrape_cycles SET
			finished_at = ?, status = ?, listings_seen = ?, listings_new = ?,
			listings_changed = ?, geo_blocked = ?, rejected = ?, errors_count = ?
		WHERE id = ?`,
		c.FinishedAt, c.Status, c.ListingsSeen, c.ListingsNew,
		c.ListingsChanged, c.GeoBlocked, c.Rejected, c.ErrorsCount, c.ID)
	return err
}

func (s *SQLiteStore) GetRecentCycles(limit int) ([]models.ScrapeCycle, error) {
	rows, err := s.db.Query(`
		SELECT id, number, kind, started_at, finished_at, status,
			listings_seen, listings_new, listings_changed, geo_blocked, rejected, errors_count
		FROM scrape_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.ScrapeCycle
	for rows.Next() {
		var c models.ScrapeCycle
		if err := rows.Scan(&c.ID, &c.Number, &c.Kind, &c.StartedAt, &c.FinishedAt, &c.Status,
			&c.ListingsSeen, &c.ListingsNew, &c.ListingsChanged, &c.GeoBlocked, &c.Rejected, &c.ErrorsCount); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// =============================================================================
// Logs
// =============================================================================

func (s *SQLiteStore) Log(cycleID *int64, level models.LogLevel, message, platform string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (cycle_id, timestamp, level, message, platform)
		VALUES (?, ?, ?, ?, ?)`,
		cycleID, time.Now(), level, message, platform)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, ''), created_at
		FROM commands WHERE processed_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params string
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		if params != "" {
			cmd.Params = []byte(params)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) EnqueueCommand(command models.CommandType, params []byte) error {
	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`,
		command, string(params))
	return err
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

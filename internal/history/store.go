// Package history keeps a sqlite record of every unit and device the
// prober has seen, so sightings survive restarts and registry resets.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/registry"
)

var (
	errFailedOpenDB      = errors.New("failed to open database")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToInit      = errors.New("failed to initialize schema")
	errFailedToBeginTx   = errors.New("failed to begin transaction")
	errFailedToInsert    = errors.New("failed to insert")
	errFailedToQuery     = errors.New("failed to query")
	errFailedToScan      = errors.New("failed to scan")
)

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS units (
		addr TEXT NOT NULL,
		port INTEGER NOT NULL,
		host_name TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		query_ok INTEGER NOT NULL DEFAULT 0,
		query_err INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 0,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		PRIMARY KEY (addr, port)
	);

	CREATE TABLE IF NOT EXISTS devices (
		addr TEXT NOT NULL,
		port INTEGER NOT NULL,
		device_type TEXT NOT NULL,
		device_number INTEGER NOT NULL,
		device_name TEXT NOT NULL,
		unique_id TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		PRIMARY KEY (addr, port, device_type, device_number, device_name)
	);

	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle INTEGER NOT NULL,
		taken_at TIMESTAMP NOT NULL,
		units INTEGER NOT NULL,
		devices INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_taken_at ON cycles(taken_at);
`

const upsertUnitSQL = `
	INSERT INTO units (addr, port, host_name, source, platform, query_ok, query_err, active, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (addr, port) DO UPDATE SET
		host_name = CASE WHEN excluded.host_name != '' THEN excluded.host_name ELSE units.host_name END,
		platform = CASE WHEN excluded.platform != '' THEN excluded.platform ELSE units.platform END,
		query_ok = excluded.query_ok,
		query_err = excluded.query_err,
		active = excluded.active,
		last_seen = excluded.last_seen
`

const upsertDeviceSQL = `
	INSERT INTO devices (addr, port, device_type, device_number, device_name, unique_id, version, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (addr, port, device_type, device_number, device_name) DO UPDATE SET
		unique_id = excluded.unique_id,
		version = excluded.version,
		last_seen = excluded.last_seen
`

// UnitRecord is a stored unit.
type UnitRecord struct {
	Addr      netip.AddrPort `json:"addr"`
	HostName  string         `json:"hostName,omitempty"`
	Source    string         `json:"source"`
	Platform  string         `json:"platform,omitempty"`
	QueryOK   uint64         `json:"queryOk"`
	QueryErr  uint64         `json:"queryErr"`
	Active    bool           `json:"active"`
	FirstSeen time.Time      `json:"firstSeen"`
	LastSeen  time.Time      `json:"lastSeen"`
}

// DeviceRecord is a stored remote device.
type DeviceRecord struct {
	Addr         netip.AddrPort `json:"addr"`
	DeviceType   string         `json:"deviceType"`
	DeviceNumber int            `json:"deviceNumber"`
	DeviceName   string         `json:"deviceName"`
	UniqueID     string         `json:"uniqueId,omitempty"`
	Version      string         `json:"version,omitempty"`
	FirstSeen    time.Time      `json:"firstSeen"`
	LastSeen     time.Time      `json:"lastSeen"`
}

// CycleRecord is one stored snapshot summary.
type CycleRecord struct {
	Cycle   uint64    `json:"cycle"`
	TakenAt time.Time `json:"takenAt"`
	Units   int       `json:"units"`
	Devices int       `json:"devices"`
}

// Store is the sqlite sighting history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CycleComplete records a snapshot; failures are logged.
func (s *Store) CycleComplete(ctx context.Context, snap registry.Snapshot) {
	if err := s.Record(ctx, snap); err != nil {
		logging.Warn("Failed to record history", zap.Uint64("cycle", snap.Cycle), zap.Error(err))
	}
}

// Record upserts every unit and device of snap in one transaction.
func (s *Store) Record(ctx context.Context, snap registry.Snapshot) (err error) {
	// A cancelled ctx should not lose the final cycle of a shutdown.
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, u := range snap.Units {
		_, err = tx.ExecContext(ctx, upsertUnitSQL,
			u.Key.Addr.String(), int(u.Key.Port), u.HostName, string(u.Source), u.Metadata.Platform,
			int64(u.QueryOKCount), int64(u.QueryErrCount), u.CurrentlyActive,
			u.FirstSeen.UTC(), u.LastSeen.UTC(),
		)
		if err != nil {
			return fmt.Errorf("%w unit %s: %w", errFailedToInsert, u.Key, err)
		}
	}
	for _, d := range snap.Devices {
		_, err = tx.ExecContext(ctx, upsertDeviceSQL,
			d.Key.Unit.Addr.String(), int(d.Key.Unit.Port), d.DeviceType, d.DeviceNumber, d.DeviceName,
			d.UniqueID, d.Version, d.FirstSeen.UTC(), d.LastSeen.UTC(),
		)
		if err != nil {
			return fmt.Errorf("%w device %s: %w", errFailedToInsert, d.Key, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cycles (cycle, taken_at, units, devices) VALUES (?, ?, ?, ?)`,
		int64(snap.Cycle), snap.TakenAt.UTC(), len(snap.Units), len(snap.Devices),
	)
	if err != nil {
		return fmt.Errorf("%w cycle: %w", errFailedToInsert, err)
	}
	return tx.Commit()
}

// Units returns every stored unit ordered by address.
func (s *Store) Units(ctx context.Context) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr, port, host_name, source, platform, query_ok, query_err, active, first_seen, last_seen
		FROM units`)
	if err != nil {
		return nil, fmt.Errorf("%w units: %w", errFailedToQuery, err)
	}
	defer rows.Close()

	var out []UnitRecord
	for rows.Next() {
		var (
			r    UnitRecord
			addr string
			port int
			ok   int64
			bad  int64
		)
		if err := rows.Scan(&addr, &port, &r.HostName, &r.Source, &r.Platform, &ok, &bad, &r.Active, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("%w unit: %w", errFailedToScan, err)
		}
		r.Addr, err = addrPort(addr, port)
		if err != nil {
			return nil, err
		}
		r.QueryOK, r.QueryErr = uint64(ok), uint64(bad)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w units: %w", errFailedToQuery, err)
	}
	slices.SortFunc(out, func(a, b UnitRecord) int { return a.Addr.Compare(b.Addr) })
	return out, nil
}

// Devices returns every stored device ordered by address, type and name.
func (s *Store) Devices(ctx context.Context) ([]DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr, port, device_type, device_number, device_name, unique_id, version, first_seen, last_seen
		FROM devices
		ORDER BY device_type, device_name, device_number`)
	if err != nil {
		return nil, fmt.Errorf("%w devices: %w", errFailedToQuery, err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var (
			r    DeviceRecord
			addr string
			port int
		)
		if err := rows.Scan(&addr, &port, &r.DeviceType, &r.DeviceNumber, &r.DeviceName, &r.UniqueID, &r.Version, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("%w device: %w", errFailedToScan, err)
		}
		r.Addr, err = addrPort(addr, port)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w devices: %w", errFailedToQuery, err)
	}
	// The query already orders by type and name; a stable sort by address
	// keeps that order within each unit.
	slices.SortStableFunc(out, func(a, b DeviceRecord) int { return a.Addr.Compare(b.Addr) })
	return out, nil
}

// Cycles returns the most recent cycle summaries, newest first.
func (s *Store) Cycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, taken_at, units, devices FROM cycles
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w cycles: %w", errFailedToQuery, err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			r     CycleRecord
			cycle int64
		)
		if err := rows.Scan(&cycle, &r.TakenAt, &r.Units, &r.Devices); err != nil {
			return nil, fmt.Errorf("%w cycle: %w", errFailedToScan, err)
		}
		r.Cycle = uint64(cycle)
		out = append(out, r)
	}
	return out, rows.Err()
}

func addrPort(addr string, port int) (netip.AddrPort, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: stored address %q: %w", errFailedToScan, addr, err)
	}
	return netip.AddrPortFrom(ip, uint16(port)), nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/autopeer-io/roverhub/internal/hub/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS rovers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'disconnected',
	connected INTEGER NOT NULL DEFAULT 0,
	battery_level INTEGER NOT NULL DEFAULT 100,
	last_seen TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS client_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rover_id INTEGER NOT NULL UNIQUE REFERENCES rovers(id),
	socket_id TEXT NOT NULL,
	connected INTEGER NOT NULL DEFAULT 0,
	last_ping TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS client_sessions_socket ON client_sessions(socket_id);
CREATE TABLE IF NOT EXISTS command_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rover_id INTEGER NOT NULL,
	command TEXT NOT NULL,
	status TEXT NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS command_logs_rover ON command_logs(rover_id, timestamp);
CREATE TABLE IF NOT EXISTS sensor_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rover_id INTEGER NOT NULL,
	temperature REAL,
	speed REAL,
	latitude REAL,
	longitude REAL,
	battery_level INTEGER,
	signal_strength INTEGER,
	cpu_usage REAL,
	memory_usage REAL,
	distance_traveled REAL,
	trips INTEGER,
	current_position TEXT,
	map_data TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sensor_data_rover ON sensor_data(rover_id, timestamp);
`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set store db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set store db busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const roverColumns = `id, identifier, name, ip_address, status, connected, battery_level, last_seen, created_at`

func (s *SQLite) GetRover(ctx context.Context, id int64) (*model.Rover, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roverColumns+` FROM rovers WHERE id = ?`, id)
	r, err := scanRover(row)
	if err != nil {
		return nil, fmt.Errorf("rover %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLite) GetRoverByIdentifier(ctx context.Context, identifier string) (*model.Rover, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roverColumns+` FROM rovers WHERE identifier = ?`, identifier)
	r, err := scanRover(row)
	if err != nil {
		return nil, fmt.Errorf("rover %q: %w", identifier, err)
	}
	return r, nil
}

func (s *SQLite) CreateRover(ctx context.Context, rover *model.Rover) (*model.Rover, error) {
	createdAt := rover.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rovers (identifier, name, ip_address, status, connected, battery_level, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rover.Identifier, rover.Name, rover.IPAddress, string(rover.Status), boolInt(rover.Connected),
		rover.BatteryLevel, formatTime(rover.LastSeen), formatTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create rover %q: %w", rover.Identifier, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create rover %q: %w", rover.Identifier, err)
	}
	return s.GetRover(ctx, id)
}

func (s *SQLite) UpdateRover(ctx context.Context, id int64, update model.RoverUpdate) (*model.Rover, error) {
	var (
		sets []string
		args []any
	)
	if update.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*update.Status))
	}
	if update.Connected != nil {
		sets, args = append(sets, "connected = ?"), append(args, boolInt(*update.Connected))
	}
	if update.BatteryLevel != nil {
		sets, args = append(sets, "battery_level = ?"), append(args, *update.BatteryLevel)
	}
	if update.IPAddress != nil {
		sets, args = append(sets, "ip_address = ?"), append(args, *update.IPAddress)
	}
	if update.LastSeen != nil {
		sets, args = append(sets, "last_seen = ?"), append(args, formatTime(*update.LastSeen))
	}

	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, `UPDATE rovers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update rover %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("rover %d: %w", id, ErrNotFound)
		}
	}
	return s.GetRover(ctx, id)
}

func (s *SQLite) ListRovers(ctx context.Context) ([]model.Rover, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roverColumns+` FROM rovers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rovers: %w", err)
	}
	defer rows.Close()

	out := make([]model.Rover, 0)
	for rows.Next() {
		r, err := scanRover(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rover row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rover rows: %w", err)
	}
	return out, nil
}

const sessionColumns = `id, rover_id, socket_id, connected, last_ping`

func (s *SQLite) GetClientSessionByRoverID(ctx context.Context, roverID int64) (*model.ClientSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM client_sessions WHERE rover_id = ?`, roverID)
	cs, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session for rover %d: %w", roverID, err)
	}
	return cs, nil
}

func (s *SQLite) GetClientSessionBySocketID(ctx context.Context, socketID string) (*model.ClientSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM client_sessions WHERE socket_id = ?`, socketID)
	cs, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session for socket %s: %w", socketID, err)
	}
	return cs, nil
}

func (s *SQLite) CreateClientSession(ctx context.Context, session *model.ClientSession) (*model.ClientSession, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO client_sessions (rover_id, socket_id, connected, last_ping) VALUES (?, ?, ?, ?)`,
		session.RoverID, session.SocketID, boolInt(session.Connected), formatTime(session.LastPing),
	)
	if err != nil {
		return nil, fmt.Errorf("create session for rover %d: %w", session.RoverID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create session for rover %d: %w", session.RoverID, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM client_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLite) UpdateClientSession(ctx context.Context, id int64, update model.SessionUpdate) (*model.ClientSession, error) {
	var (
		sets []string
		args []any
	)
	if update.SocketID != nil {
		sets, args = append(sets, "socket_id = ?"), append(args, *update.SocketID)
	}
	if update.Connected != nil {
		sets, args = append(sets, "connected = ?"), append(args, boolInt(*update.Connected))
	}
	if update.LastPing != nil {
		sets, args = append(sets, "last_ping = ?"), append(args, formatTime(*update.LastPing))
	}

	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, `UPDATE client_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update session %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM client_sessions WHERE id = ?`, id)
	cs, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}
	return cs, nil
}

const commandColumns = `id, rover_id, command, status, response, timestamp`

func (s *SQLite) CreateCommand(ctx context.Context, cmd *model.Command) (*model.Command, error) {
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO command_logs (rover_id, command, status, response, timestamp) VALUES (?, ?, ?, ?, ?)`,
		cmd.RoverID, cmd.Command, string(cmd.Status), cmd.Response, formatTime(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("create command for rover %d: %w", cmd.RoverID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create command for rover %d: %w", cmd.RoverID, err)
	}
	return s.GetCommand(ctx, id)
}

func (s *SQLite) GetCommand(ctx context.Context, id int64) (*model.Command, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM command_logs WHERE id = ?`, id)
	c, err := scanCommand(row)
	if err != nil {
		return nil, fmt.Errorf("command %d: %w", id, err)
	}
	return c, nil
}

func (s *SQLite) ListCommands(ctx context.Context, roverID int64, limit int) ([]model.Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM command_logs WHERE rover_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		roverID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	out := make([]model.Command, 0)
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) ResolveCommand(ctx context.Context, id int64, status model.CommandStatus, response string) (*model.Command, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE command_logs SET status = ?, response = ? WHERE id = ? AND status = ?`,
		string(status), response, id, string(model.CommandStatusPending),
	)
	if err != nil {
		return nil, false, fmt.Errorf("resolve command %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("resolve command %d: %w", id, err)
	}

	cmd, err := s.GetCommand(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cmd, n == 1, nil
}

const sampleColumns = `id, rover_id, temperature, speed, latitude, longitude, battery_level, signal_strength,
	cpu_usage, memory_usage, distance_traveled, trips, current_position, map_data, timestamp`

func (s *SQLite) CreateTelemetry(ctx context.Context, sample *model.TelemetrySample) (*model.TelemetrySample, error) {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (rover_id, temperature, speed, latitude, longitude, battery_level, signal_strength,
		 cpu_usage, memory_usage, distance_traveled, trips, current_position, map_data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.RoverID, sample.Temperature, sample.Speed, sample.Latitude, sample.Longitude,
		sample.BatteryLevel, sample.SignalStrength, sample.CPUUsage, sample.MemoryUsage,
		sample.DistanceTraveled, sample.Trips, rawText(sample.CurrentPosition), rawText(sample.MapData),
		formatTime(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry for rover %d: %w", sample.RoverID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create telemetry for rover %d: %w", sample.RoverID, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM sensor_data WHERE id = ?`, id)
	return scanSample(row)
}

func (s *SQLite) ListTelemetry(ctx context.Context, roverID int64, limit int) ([]model.TelemetrySample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM sensor_data WHERE rover_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		roverID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer rows.Close()

	out := make([]model.TelemetrySample, 0)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		out = append(out, *sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry rows: %w", err)
	}
	return out, nil
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanRover(row scanner) (*model.Rover, error) {
	var (
		r                   model.Rover
		status              string
		connected           int
		lastSeen, createdAt string
	)
	err := row.Scan(&r.ID, &r.Identifier, &r.Name, &r.IPAddress, &status, &connected, &r.BatteryLevel, &lastSeen, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	r.Status = model.RoverStatus(status)
	r.Connected = connected != 0
	r.LastSeen = parseTime(lastSeen)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func scanSession(row scanner) (*model.ClientSession, error) {
	var (
		cs        model.ClientSession
		connected int
		lastPing  string
	)
	if err := row.Scan(&cs.ID, &cs.RoverID, &cs.SocketID, &connected, &lastPing); err != nil {
		return nil, notFound(err)
	}
	cs.Connected = connected != 0
	cs.LastPing = parseTime(lastPing)
	return &cs, nil
}

func scanCommand(row scanner) (*model.Command, error) {
	var (
		c      model.Command
		status string
		ts     string
	)
	if err := row.Scan(&c.ID, &c.RoverID, &c.Command, &status, &c.Response, &ts); err != nil {
		return nil, notFound(err)
	}
	c.Status = model.CommandStatus(status)
	c.Timestamp = parseTime(ts)
	return &c, nil
}

func scanSample(row scanner) (*model.TelemetrySample, error) {
	var (
		out                    model.TelemetrySample
		temperature, speed     sql.NullFloat64
		latitude, longitude    sql.NullFloat64
		cpu, memory, distance  sql.NullFloat64
		battery, signal, trips sql.NullInt64
		position, mapData      sql.NullString
		ts                     string
	)
	err := row.Scan(&out.ID, &out.RoverID, &temperature, &speed, &latitude, &longitude, &battery, &signal,
		&cpu, &memory, &distance, &trips, &position, &mapData, &ts)
	if err != nil {
		return nil, notFound(err)
	}
	out.Temperature = floatPtr(temperature)
	out.Speed = floatPtr(speed)
	out.Latitude = floatPtr(latitude)
	out.Longitude = floatPtr(longitude)
	out.BatteryLevel = intPtr(battery)
	out.SignalStrength = intPtr(signal)
	out.CPUUsage = floatPtr(cpu)
	out.MemoryUsage = floatPtr(memory)
	out.DistanceTraveled = floatPtr(distance)
	out.Trips = intPtr(trips)
	if position.Valid {
		out.CurrentPosition = json.RawMessage(position.String)
	}
	if mapData.Valid {
		out.MapData = json.RawMessage(mapData.String)
	}
	out.Timestamp = parseTime(ts)
	return &out, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func rawText(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/reliability"
)

// FilePaths names the CSV exports a FileStore loads. Sessions is optional.
type FilePaths struct {
	Chargers string
	Status   string
	Sessions string
}

// FileStore answers the same questions as TimescaleStore from CSV exports
// loaded into an in-memory DuckDB database.
type FileStore struct {
	db *sql.DB
}

func NewFileStore(ctx context.Context, paths FilePaths) (*FileStore, error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		_, err := execer.ExecContext(context.Background(), "SET TimeZone='UTC'", nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE chargers AS SELECT * FROM read_csv(%s, header = true, columns = {
			'charger_id': 'VARCHAR', 'site_id': 'VARCHAR', 'site_name': 'VARCHAR',
			'model': 'VARCHAR', 'connector_type': 'VARCHAR', 'max_power_kw': 'DOUBLE'})`, quote(paths.Chargers)),
		fmt.Sprintf(`CREATE TABLE charger_status AS SELECT *, "time" AS received_at FROM read_csv(%s, header = true, columns = {
			'time': 'TIMESTAMP', 'charger_id': 'VARCHAR', 'connector_id': 'INTEGER',
			'status': 'VARCHAR', 'error_code': 'VARCHAR'})`, quote(paths.Status)),
	}
	if paths.Sessions != "" {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE charging_sessions AS SELECT * FROM read_csv(%s, header = true, columns = {
			'session_id': 'VARCHAR', 'charger_id': 'VARCHAR', 'start_time': 'TIMESTAMP',
			'end_time': 'TIMESTAMP', 'energy_kwh': 'DOUBLE'})`, quote(paths.Sessions)))
	} else {
		stmts = append(stmts, `CREATE TABLE charging_sessions (
			session_id VARCHAR, charger_id VARCHAR, start_time TIMESTAMP, end_time TIMESTAMP, energy_kwh DOUBLE)`)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("load csv: %w", err)
		}
	}
	return &FileStore{db: db}, nil
}

func (f *FileStore) Close() error {
	return f.db.Close()
}

const fileChargerSelect = `
	SELECT charger_id, COALESCE(site_id, ''), COALESCE(site_name, ''), COALESCE(model, ''),
	       COALESCE(connector_type, ''), COALESCE(max_power_kw, 0)
	FROM chargers
`

func (f *FileStore) ListChargers(ctx context.Context) ([]domain.Charger, error) {
	return f.queryChargers(ctx, fileChargerSelect+` ORDER BY charger_id`)
}

func (f *FileStore) ResolveScope(ctx context.Context, scope reliability.Scope) ([]domain.Charger, error) {
	var (
		chargers []domain.Charger
		err      error
	)
	switch scope.Kind {
	case reliability.ScopeFleet:
		return f.ListChargers(ctx)
	case reliability.ScopeCharger:
		chargers, err = f.queryChargers(ctx, fileChargerSelect+` WHERE charger_id = ?`, scope.ID)
	case reliability.ScopeSite:
		chargers, err = f.queryChargers(ctx, fileChargerSelect+` WHERE site_id = ? ORDER BY charger_id`, scope.ID)
	case reliability.ScopeModel:
		chargers, err = f.queryChargers(ctx, fileChargerSelect+` WHERE model = ? ORDER BY charger_id`, scope.ID)
	default:
		return nil, &reliability.ConfigError{Field: "scope", Reason: fmt.Sprintf("unsupported kind %q", scope.Kind)}
	}
	if err != nil {
		return nil, err
	}
	if len(chargers) == 0 {
		return nil, &reliability.UnknownScopeError{Scope: scope.Kind, ID: scope.ID}
	}
	return chargers, nil
}

func (f *FileStore) ScopeIDs(ctx context.Context, kind reliability.ScopeKind) ([]string, error) {
	var query string
	switch kind {
	case reliability.ScopeSite:
		query = `SELECT DISTINCT site_id FROM chargers WHERE site_id IS NOT NULL ORDER BY site_id`
	case reliability.ScopeModel:
		query = `SELECT DISTINCT model FROM chargers WHERE model IS NOT NULL ORDER BY model`
	case reliability.ScopeCharger:
		query = `SELECT charger_id FROM chargers ORDER BY charger_id`
	default:
		return nil, &reliability.ConfigError{Field: "scope", Reason: fmt.Sprintf("cannot break down by %q", kind)}
	}

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", kind, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (f *FileStore) Observations(ctx context.Context, chargerID string, w reliability.Window) ([]domain.Observation, error) {
	const cols = `"time", COALESCE(connector_id, 0), status, COALESCE(error_code, ''), received_at`
	query := `
		SELECT * FROM (
			SELECT ` + cols + ` FROM charger_status
			WHERE charger_id = ? AND "time" < ?
			ORDER BY "time" DESC, received_at DESC
			LIMIT 1
		)
		UNION ALL
		SELECT ` + cols + ` FROM charger_status
		WHERE charger_id = ? AND "time" >= ? AND "time" <= ?
	`
	start, end := w.Start.UTC(), w.End.UTC()
	rows, err := f.db.QueryContext(ctx, query, chargerID, start, chargerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", chargerID, err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var (
			o      = domain.Observation{ChargerID: chargerID}
			status string
		)
		if err := rows.Scan(&o.Timestamp, &o.ConnectorID, &status, &o.ErrorCode, &o.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan observation for %s: %w", chargerID, err)
		}
		o.Timestamp, o.ReceivedAt = o.Timestamp.UTC(), o.ReceivedAt.UTC()
		o.State = domain.State(strings.ToUpper(status))
		out = append(out, o)
	}
	return out, rows.Err()
}

func (f *FileStore) Sessions(ctx context.Context, chargerIDs []string, w reliability.Window) ([]domain.Session, error) {
	if len(chargerIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(chargerIDs)+2)
	for _, id := range chargerIDs {
		args = append(args, id)
	}
	args = append(args, w.End.UTC(), w.Start.UTC())

	query := `
		SELECT session_id, charger_id, start_time, end_time, COALESCE(energy_kwh, 0)
		FROM charging_sessions
		WHERE charger_id IN (` + placeholders(len(chargerIDs)) + `) AND start_time < ? AND end_time > ?
		ORDER BY start_time, session_id
	`
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.SessionID, &s.ChargerID, &s.Start, &s.End, &s.EnergyKWh); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Start, s.End = s.Start.UTC(), s.End.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (f *FileStore) queryChargers(ctx context.Context, query string, args ...any) ([]domain.Charger, error) {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chargers: %w", err)
	}
	defer rows.Close()

	var out []domain.Charger
	for rows.Next() {
		var c domain.Charger
		if err := rows.Scan(&c.ChargerID, &c.SiteID, &c.SiteName, &c.Model, &c.ConnectorType, &c.MaxPowerKW); err != nil {
			return nil, fmt.Errorf("scan charger: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func quote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", "''") + "'"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"charger-monitor/reliability/internal/config"
	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/reliability"
)

type TimescaleStore struct {
	pool *pgxpool.Pool
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var statusColumns = []string{
	"time",
	"charger_id",
	"connector_id",
	"status",
	"error_code",
	"received_at",
}

func (s *TimescaleStore) BatchInsertStatus(ctx context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(obs))
	for i, o := range obs {
		rows[i] = []interface{}{
			o.Timestamp,
			o.ChargerID,
			o.ConnectorID,
			string(o.State),
			nullIfEmpty(o.ErrorCode),
			o.ReceivedAt,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"charger_status"},
		statusColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(obs), err)
	}

	return nil
}

// InsertSessions upserts session records; a repeated session id replaces
// the stored end time and energy.
func (s *TimescaleStore) InsertSessions(ctx context.Context, sessions []domain.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sess := range sessions {
		id, err := uuid.Parse(sess.SessionID)
		if err != nil {
			return fmt.Errorf("session id %q: %w", sess.SessionID, err)
		}
		batch.Queue(`
			INSERT INTO charging_sessions (session_id, charger_id, start_time, end_time, energy_kwh)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, start_time)
			DO UPDATE SET end_time = EXCLUDED.end_time, energy_kwh = EXCLUDED.energy_kwh
		`, id, sess.ChargerID, sess.Start, sess.End, sess.EnergyKWh)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range sessions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert sessions: %w", err)
		}
	}
	return nil
}

func (s *TimescaleStore) InsertAlert(
	ctx context.Context,
	obs *domain.Observation,
	alertType domain.AlertType,
	severity domain.AlertSeverity,
) error {
	query := `
		INSERT INTO charger_alerts
			(charger_id, alert_type, severity, status, error_code, observed_at, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		obs.ChargerID,
		string(alertType),
		string(severity),
		string(obs.State),
		nullIfEmpty(obs.ErrorCode),
		obs.Timestamp,
	)
	return err
}

const chargerSelect = `
	SELECT c.charger_id, c.site_id, COALESCE(s.name, ''), COALESCE(c.model, ''),
	       COALESCE(c.connector_type, ''), COALESCE(c.max_power_kw, 0)
	FROM chargers c
	LEFT JOIN sites s ON s.site_id = c.site_id
`

func (s *TimescaleStore) ListChargers(ctx context.Context) ([]domain.Charger, error) {
	return s.queryChargers(ctx, chargerSelect+` ORDER BY c.charger_id`)
}

// ResolveScope lists the chargers of a scope. An id that matches nothing is
// an UnknownScopeError; an empty fleet is not.
func (s *TimescaleStore) ResolveScope(ctx context.Context, scope reliability.Scope) ([]domain.Charger, error) {
	var (
		chargers []domain.Charger
		err      error
	)
	switch scope.Kind {
	case reliability.ScopeFleet:
		return s.ListChargers(ctx)
	case reliability.ScopeCharger:
		chargers, err = s.queryChargers(ctx, chargerSelect+` WHERE c.charger_id = $1`, scope.ID)
	case reliability.ScopeSite:
		chargers, err = s.queryChargers(ctx, chargerSelect+` WHERE c.site_id = $1 ORDER BY c.charger_id`, scope.ID)
	case reliability.ScopeModel:
		chargers, err = s.queryChargers(ctx, chargerSelect+` WHERE c.model = $1 ORDER BY c.charger_id`, scope.ID)
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

// ScopeIDs lists the distinct site or model ids that have chargers.
func (s *TimescaleStore) ScopeIDs(ctx context.Context, kind reliability.ScopeKind) ([]string, error) {
	var query string
	switch kind {
	case reliability.ScopeSite:
		query = `SELECT DISTINCT site_id FROM chargers ORDER BY site_id`
	case reliability.ScopeModel:
		query = `SELECT DISTINCT model FROM chargers WHERE model IS NOT NULL ORDER BY model`
	case reliability.ScopeCharger:
		query = `SELECT charger_id FROM chargers ORDER BY charger_id`
	default:
		return nil, &reliability.ConfigError{Field: "scope", Reason: fmt.Sprintf("cannot break down by %q", kind)}
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s ids: %w", kind, err)
	}
	return ids, nil
}

// Observations returns the pings of one charger needed for w: the latest
// ping before the window plus every ping in [w.Start, w.End].
func (s *TimescaleStore) Observations(ctx context.Context, chargerID string, w reliability.Window) ([]domain.Observation, error) {
	query := `
		(SELECT time, connector_id, status, COALESCE(error_code, ''), received_at
		 FROM charger_status
		 WHERE charger_id = $1 AND time < $2
		 ORDER BY time DESC, received_at DESC
		 LIMIT 1)
		UNION ALL
		(SELECT time, connector_id, status, COALESCE(error_code, ''), received_at
		 FROM charger_status
		 WHERE charger_id = $1 AND time >= $2 AND time <= $3)
	`
	rows, err := s.pool.Query(ctx, query, chargerID, w.Start, w.End)
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
		o.State = domain.State(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// LatestStatus returns the most recent ping of every charger that has one.
func (s *TimescaleStore) LatestStatus(ctx context.Context) ([]domain.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (charger_id)
			charger_id, time, connector_id, status, COALESCE(error_code, ''), received_at
		FROM charger_status
		ORDER BY charger_id, time DESC, received_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest status: %w", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var (
			o      domain.Observation
			status string
		)
		if err := rows.Scan(&o.ChargerID, &o.Timestamp, &o.ConnectorID, &status, &o.ErrorCode, &o.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan latest status: %w", err)
		}
		o.Timestamp, o.ReceivedAt = o.Timestamp.UTC(), o.ReceivedAt.UTC()
		o.State = domain.State(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Sessions returns the sessions of the given chargers that overlap w.
func (s *TimescaleStore) Sessions(ctx context.Context, chargerIDs []string, w reliability.Window) ([]domain.Session, error) {
	if len(chargerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, charger_id, start_time, end_time, COALESCE(energy_kwh, 0)
		FROM charging_sessions
		WHERE charger_id = ANY($1) AND start_time < $3 AND end_time > $2
		ORDER BY start_time, session_id
	`, chargerIDs, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var (
			id   uuid.UUID
			sess domain.Session
		)
		if err := rows.Scan(&id, &sess.ChargerID, &sess.Start, &sess.End, &sess.EnergyKWh); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.SessionID = id.String()
		sess.Start, sess.End = sess.Start.UTC(), sess.End.UTC()
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *TimescaleStore) queryChargers(ctx context.Context, query string, args ...any) ([]domain.Charger, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

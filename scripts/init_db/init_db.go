package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"charger-monitor/reliability/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_registry_tables(ctx, conn)
	step3_status_table(ctx, conn)
	step4_sessions_table(ctx, conn)
	step5_alerts_table(ctx, conn)
	step6_indexes(ctx, conn)
	step7_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./cmd/reliability-api")
}

// ─────────────────────────────────────────────────────────────
// Step 1: Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2: sites and chargers
// ─────────────────────────────────────────────────────────────
func step2_registry_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: sites and chargers ──────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS sites (
			site_id    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			timezone   TEXT NOT NULL DEFAULT 'UTC'
		);
	`, "sites table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS chargers (
			charger_id      TEXT             PRIMARY KEY,
			site_id         TEXT             NOT NULL REFERENCES sites (site_id),
			model           TEXT,
			connector_type  TEXT,
			max_power_kw    DOUBLE PRECISION,
			installed_at    TIMESTAMPTZ
		);
	`, "chargers table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3: charger_status hypertable
// ─────────────────────────────────────────────────────────────
func step3_status_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: charger_status table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS charger_status (

			-- Charger clock; the engine orders pings by this
			time          TIMESTAMPTZ NOT NULL,

			-- Server receipt time; breaks ties between pings with the same time
			received_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			charger_id    TEXT        NOT NULL,
			connector_id  INTEGER     NOT NULL DEFAULT 0,
			status        TEXT        NOT NULL,
			error_code    TEXT,

			CONSTRAINT chk_status CHECK (
				status IN ('AVAILABLE', 'CHARGING', 'FAULTED', 'OFFLINE', 'UNKNOWN')
			)
		);
	`, "charger_status table created")

	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'charger_status',
			'time',
			if_not_exists => TRUE
		);
	`, "charger_status converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 4: charging_sessions hypertable
// ─────────────────────────────────────────────────────────────
func step4_sessions_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: charging_sessions table ─────────────")

	// The partition column has to be part of the primary key.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS charging_sessions (
			session_id   UUID             NOT NULL,
			charger_id   TEXT             NOT NULL,
			start_time   TIMESTAMPTZ      NOT NULL,
			end_time     TIMESTAMPTZ      NOT NULL,
			energy_kwh   DOUBLE PRECISION NOT NULL DEFAULT 0,

			PRIMARY KEY (session_id, start_time),
			CONSTRAINT chk_session_order CHECK (end_time >= start_time)
		);
	`, "charging_sessions table created")

	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'charging_sessions',
			'start_time',
			if_not_exists => TRUE
		);
	`, "charging_sessions converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 5: charger_alerts table
// ─────────────────────────────────────────────────────────────
func step5_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: charger_alerts table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS charger_alerts (
			id               BIGSERIAL   PRIMARY KEY,
			charger_id       TEXT        NOT NULL,

			-- Must match domain.AlertType and domain.AlertSeverity
			alert_type       TEXT        NOT NULL,
			severity         TEXT        NOT NULL,

			-- The ping that raised the alert
			status           TEXT        NOT NULL,
			error_code       TEXT,
			observed_at      TIMESTAMPTZ NOT NULL,

			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			acknowledged_at  TIMESTAMPTZ,
			acknowledged_by  TEXT,

			CONSTRAINT chk_alert_type CHECK (
				alert_type IN ('CHARGER_FAULTED', 'CHARGER_OFFLINE')
			),
			CONSTRAINT chk_severity CHECK (
				severity IN ('INFO', 'WARNING', 'CRITICAL')
			),
			CONSTRAINT uq_alert_ping UNIQUE (charger_id, alert_type, observed_at)
		);
	`, "charger_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 6: Indexes
// ─────────────────────────────────────────────────────────────
func step6_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_status_charger_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_status_charger_time
				  ON charger_status (charger_id, time DESC, received_at DESC);`,
			why: "query: pings of one charger in a window + latest before it",
		},
		{
			name: "idx_sessions_charger_start",
			sql: `CREATE INDEX IF NOT EXISTS idx_sessions_charger_start
				  ON charging_sessions (charger_id, start_time);`,
			why: "query: sessions overlapping a window",
		},
		{
			name: "idx_chargers_site",
			sql: `CREATE INDEX IF NOT EXISTS idx_chargers_site
				  ON chargers (site_id);`,
			why: "query: resolve site scope",
		},
		{
			name: "idx_chargers_model",
			sql: `CREATE INDEX IF NOT EXISTS idx_chargers_model
				  ON chargers (model);`,
			why: "query: resolve model scope",
		},
		{
			name: "idx_alerts_charger",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_charger
				  ON charger_alerts (charger_id, created_at DESC);`,
			why: "query: alerts for one charger",
		},
		{
			name: "idx_alerts_unacknowledged",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_unacknowledged
				  ON charger_alerts (created_at DESC)
				  WHERE acknowledged_at IS NULL;`,
			why: "query: unacknowledged alerts only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-30s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 7: Verify everything was created
// ─────────────────────────────────────────────────────────────
func step7_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 7: Verification ────────────────────────")

	tables := []string{"sites", "chargers", "charger_status", "charging_sessions", "charger_alerts"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	rows, err := conn.Query(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name IN ('charger_status', 'charging_sessions')
		ORDER BY hypertable_name
	`)
	if err != nil {
		log.Fatalf("Hypertable check failed: %v", err)
	}
	hypertables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil || len(hypertables) != 2 {
		log.Fatalf("Expected 2 hypertables, found %v: %v", hypertables, err)
	}
	for _, h := range hypertables {
		fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", h)
	}

	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('chargers', 'charger_status', 'charging_sessions', 'charger_alerts')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

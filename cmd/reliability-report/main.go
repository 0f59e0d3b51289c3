package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"charger-monitor/reliability/internal/config"
	"charger-monitor/reliability/internal/logging"
	"charger-monitor/reliability/internal/reliability"
	"charger-monitor/reliability/internal/reporting"
	"charger-monitor/reliability/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reliability-report:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		chargers  = flag.String("chargers", "", "chargers CSV (charger_id,site_id,site_name,model,connector_type,max_power_kw)")
		status    = flag.String("status", "", "status CSV (time,charger_id,connector_id,status,error_code)")
		sessions  = flag.String("sessions", "", "sessions CSV (session_id,charger_id,start_time,end_time,energy_kwh), optional")
		scopeKind = flag.String("scope", "fleet", "charger, site, model or fleet")
		scopeID   = flag.String("id", "", "charger, site or model id")
		from      = flag.String("from", "", "window start, RFC 3339")
		to        = flag.String("to", "", "window end, RFC 3339 (default now)")
		days      = flag.Int("days", 0, "window length in days ending at -to, used when -from is empty")
		breakdown = flag.Bool("breakdown", false, "one report per site or model id of -scope")
		detail    = flag.Bool("detail", false, "include intervals and episodes (charger scope)")
		maxGap    = flag.Duration("max-ping-gap", 0, "override MAX_PING_GAP")
		mergeTol  = flag.Duration("merge-tolerance", 0, "override MERGE_TOLERANCE")
	)
	flag.Parse()

	if *chargers == "" || *status == "" {
		flag.Usage()
		return fmt.Errorf("-chargers and -status are required")
	}

	if *maxGap != 0 {
		cfg.MaxPingGap = *maxGap
	}
	if *mergeTol != 0 {
		cfg.MergeTolerance = *mergeTol
	}
	params, err := cfg.EngineParams()
	if err != nil {
		return err
	}

	kind, err := reliability.ParseScopeKind(*scopeKind)
	if err != nil {
		return err
	}
	w, err := window(*from, *to, *days, cfg.DefaultWindow)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fs, err := store.NewFileStore(ctx, store.FilePaths{Chargers: *chargers, Status: *status, Sessions: *sessions})
	if err != nil {
		return err
	}
	defer fs.Close()

	log := logging.NewWithOutput(cfg.LogLevel, "text", os.Stderr)
	reporter, err := reporting.NewReporter(fs, nil, log, reporting.Options{
		Params:  params,
		Workers: cfg.ComputeWorkers,
	})
	if err != nil {
		return err
	}

	var out any
	switch {
	case *breakdown:
		out, err = reporter.Breakdown(ctx, kind, w)
	case *detail && kind == reliability.ScopeCharger:
		out, err = reporter.ChargerDetail(ctx, *scopeID, w)
	default:
		out, err = reporter.Report(ctx, reliability.Scope{Kind: kind, ID: *scopeID}, w)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func window(from, to string, days int, fallback time.Duration) (reliability.Window, error) {
	end := time.Now().UTC().Truncate(time.Minute)
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return reliability.Window{}, fmt.Errorf("-to: %w", err)
		}
		end = t
	}
	if from != "" {
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return reliability.Window{}, fmt.Errorf("-from: %w", err)
		}
		return reliability.NewWindow(start, end)
	}

	span := fallback
	if days > 0 {
		span = time.Duration(days) * 24 * time.Hour
	}
	return reliability.NewWindow(end.Add(-span), end)
}

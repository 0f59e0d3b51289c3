package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/metrics"
	"charger-monitor/reliability/internal/reliability"
)

// Source is the data-access collaborator. Implementations own retries.
type Source interface {
	ResolveScope(ctx context.Context, scope reliability.Scope) ([]domain.Charger, error)
	ScopeIDs(ctx context.Context, kind reliability.ScopeKind) ([]string, error)
	Observations(ctx context.Context, chargerID string, w reliability.Window) ([]domain.Observation, error)
	Sessions(ctx context.Context, chargerIDs []string, w reliability.Window) ([]domain.Session, error)
}

// Cache stores finished reports. A nil report from GetReport is a miss.
type Cache interface {
	GetReport(ctx context.Context, key string) (*reliability.Report, error)
	SetReport(ctx context.Context, key string, rep *reliability.Report, ttl time.Duration) error
}

type Options struct {
	Params   reliability.Params
	Workers  int
	CacheTTL time.Duration
}

// Reporter fetches inputs for a scope, runs the engine once per charger in
// parallel and pools the results.
type Reporter struct {
	src      Source
	cache    Cache
	log      *logrus.Logger
	params   reliability.Params
	workers  int
	cacheTTL time.Duration
}

// NewReporter validates the engine parameters up front. cache may be nil.
func NewReporter(src Source, cache Cache, log *logrus.Logger, opts Options) (*Reporter, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Reporter{
		src:      src,
		cache:    cache,
		log:      log,
		params:   opts.Params,
		workers:  opts.Workers,
		cacheTTL: opts.CacheTTL,
	}, nil
}

func (r *Reporter) Params() reliability.Params {
	return r.params
}

// ChargerDetail is a charger-scope report with the derived intervals,
// episodes and session impacts behind it, plus session totals and the last
// known status.
type ChargerDetail struct {
	Report     *reliability.Report         `json:"report" msgpack:"report"`
	Charger    domain.Charger              `json:"charger" msgpack:"charger"`
	Intervals  []reliability.StateInterval `json:"intervals" msgpack:"intervals"`
	Episodes   []reliability.Episode       `json:"episodes" msgpack:"episodes"`
	Impacts    []reliability.SessionImpact `json:"session_impacts" msgpack:"session_impacts"`
	Sessions   reliability.SessionStats    `json:"session_stats" msgpack:"session_stats"`
	LastStatus *reliability.LastStatus     `json:"last_status" msgpack:"last_status"`
}

// AlertView is an active alert with how long it has been open at the end
// of the window.
type AlertView struct {
	reliability.ActiveAlert
	SiteID          string  `json:"site_id" msgpack:"site_id"`
	Model           string  `json:"model" msgpack:"model"`
	DurationMinutes float64 `json:"duration_minutes" msgpack:"duration_minutes"`
}

// Report returns the reliability report of a scope, from cache when possible.
func (r *Reporter) Report(ctx context.Context, scope reliability.Scope, w reliability.Window) (*reliability.Report, error) {
	if err := validate(scope, w); err != nil {
		return nil, err
	}

	key := r.cacheKey(scope, w)
	if cached := r.cached(ctx, key); cached != nil {
		return cached, nil
	}

	rep, _, err := r.compute(ctx, scope, w)
	if err != nil {
		return nil, err
	}

	if r.cache != nil && r.cacheTTL > 0 {
		if err := r.cache.SetReport(ctx, key, rep, r.cacheTTL); err != nil {
			r.log.WithError(err).WithField("scope", scope.String()).Warn("report cache write failed")
		}
	}
	return rep, nil
}

func (r *Reporter) ChargerDetail(ctx context.Context, chargerID string, w reliability.Window) (*ChargerDetail, error) {
	scope := reliability.Scope{Kind: reliability.ScopeCharger, ID: chargerID}
	if err := validate(scope, w); err != nil {
		return nil, err
	}

	rep, results, err := r.compute(ctx, scope, w)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("charger %s resolved to %d chargers", chargerID, len(results))
	}
	res := results[0]
	return &ChargerDetail{
		Report:     rep,
		Charger:    res.Charger,
		Intervals:  res.Intervals,
		Episodes:   res.Episodes,
		Impacts:    res.Impacts,
		Sessions:   res.Sessions,
		LastStatus: res.LastStatus,
	}, nil
}

// Breakdown reports every site or model separately, least reliable first.
func (r *Reporter) Breakdown(ctx context.Context, kind reliability.ScopeKind, w reliability.Window) ([]*reliability.Report, error) {
	if kind != reliability.ScopeSite && kind != reliability.ScopeModel {
		return nil, &reliability.ConfigError{Field: "scope", Reason: "breakdown supports site or model"}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	ids, err := r.src.ScopeIDs(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}

	reports := make([]*reliability.Report, 0, len(ids))
	for _, id := range ids {
		rep, err := r.Report(ctx, reliability.Scope{Kind: kind, ID: id}, w)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].UptimeRatio != reports[j].UptimeRatio {
			return reports[i].UptimeRatio < reports[j].UptimeRatio
		}
		return reports[i].ScopeID < reports[j].ScopeID
	})
	return reports, nil
}

// ActiveAlerts lists the open episodes of the whole fleet at the end of w,
// longest running first.
func (r *Reporter) ActiveAlerts(ctx context.Context, w reliability.Window) ([]AlertView, error) {
	scope := reliability.Scope{Kind: reliability.ScopeFleet}
	if err := validate(scope, w); err != nil {
		return nil, err
	}

	rep, results, err := r.compute(ctx, scope, w)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Charger, len(results))
	for _, res := range results {
		byID[res.Charger.ChargerID] = res.Charger
	}

	views := make([]AlertView, 0, len(rep.ActiveAlerts))
	for _, a := range rep.ActiveAlerts {
		ch := byID[a.ChargerID]
		views = append(views, AlertView{
			ActiveAlert:     a,
			SiteID:          ch.SiteID,
			Model:           ch.Model,
			DurationMinutes: w.End.Sub(a.Start).Minutes(),
		})
	}
	return views, nil
}

func (r *Reporter) compute(ctx context.Context, scope reliability.Scope, w reliability.Window) (*reliability.Report, []reliability.ChargerResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReportDuration.WithLabelValues(string(scope.Kind)).Observe(time.Since(start).Seconds())
	}()

	chargers, err := r.src.ResolveScope(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, len(chargers))
	for i, ch := range chargers {
		ids[i] = ch.ChargerID
	}
	sessions, err := r.src.Sessions(ctx, ids, w)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch sessions for %s: %w", scope, err)
	}
	byCharger := make(map[string][]domain.Session, len(chargers))
	for _, s := range sessions {
		byCharger[s.ChargerID] = append(byCharger[s.ChargerID], s)
	}

	results := make([]reliability.ChargerResult, len(chargers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, ch := range chargers {
		g.Go(func() error {
			obs, err := r.src.Observations(gctx, ch.ChargerID, w)
			if err != nil {
				return fmt.Errorf("fetch observations for %s: %w", ch.ChargerID, err)
			}
			res, err := reliability.ComputeCharger(ch, obs, byCharger[ch.ChargerID], w, r.params)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, res := range results {
		if res.Warning != nil {
			r.log.WithFields(logrus.Fields{
				"charger_id": res.Charger.ChargerID,
				"scope":      scope.String(),
			}).Warn(res.Warning.Error())
		}
	}

	rep := reliability.Aggregate(scope, w, results)
	return &rep, results, nil
}

func (r *Reporter) cached(ctx context.Context, key string) *reliability.Report {
	if r.cache == nil || r.cacheTTL <= 0 {
		return nil
	}
	rep, err := r.cache.GetReport(ctx, key)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("report cache read failed")
		return nil
	}
	if rep == nil {
		metrics.ReportCacheMisses.Inc()
		return nil
	}
	metrics.ReportCacheHits.Inc()
	return rep
}

func (r *Reporter) cacheKey(scope reliability.Scope, w reliability.Window) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d:%d",
		scope.Kind, scope.ID,
		w.Start.Unix(), w.End.Unix(),
		int64(r.params.MaxPingGap/time.Second), int64(r.params.MergeTolerance/time.Second))
}

func validate(scope reliability.Scope, w reliability.Window) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return w.Validate()
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/reliability"
	"charger-monitor/reliability/internal/reporting"
	"charger-monitor/reliability/internal/store"
)

// Reports is the read side of the API, implemented by reporting.Reporter.
type Reports interface {
	Report(ctx context.Context, scope reliability.Scope, w reliability.Window) (*reliability.Report, error)
	Breakdown(ctx context.Context, kind reliability.ScopeKind, w reliability.Window) ([]*reliability.Report, error)
	ChargerDetail(ctx context.Context, chargerID string, w reliability.Window) (*reporting.ChargerDetail, error)
	ActiveAlerts(ctx context.Context, w reliability.Window) ([]reporting.AlertView, error)
}

type Registry interface {
	ListChargers(ctx context.Context) ([]domain.Charger, error)
}

type LiveStateReader interface {
	LiveStates(ctx context.Context, chargerIDs []string) (map[string]store.LiveState, error)
}

type Ingester interface {
	Ingest(source string, obs *domain.Observation) error
}

type SessionWriter interface {
	InsertSessions(ctx context.Context, sessions []domain.Session) error
}

type AlertFeed interface {
	SubscribeAlerts(ctx context.Context) (<-chan []byte, error)
}

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

const (
	defaultAlertDays = 3
	maxBodyBytes     = 8 << 20
)

type Handler struct {
	reports       Reports
	registry      Registry
	live          LiveStateReader
	ingest        Ingester
	sessions      SessionWriter
	alerts        AlertFeed
	checks        []HealthCheck
	log           *logrus.Logger
	defaultWindow time.Duration
	now           func() time.Time
}

// window reads from/to (RFC 3339) or days from the query. Without either the
// window ends at the current minute and spans fallback.
func (h *Handler) window(r *http.Request, fallback time.Duration) (reliability.Window, error) {
	q := r.URL.Query()
	end := h.now().UTC().Truncate(time.Minute)

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		if from == "" {
			return reliability.Window{}, &reliability.ConfigError{Field: "from", Reason: "required when to is set"}
		}
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return reliability.Window{}, &reliability.ConfigError{Field: "from", Reason: "must be an RFC 3339 timestamp"}
		}
		if to != "" {
			if end, err = time.Parse(time.RFC3339, to); err != nil {
				return reliability.Window{}, &reliability.ConfigError{Field: "to", Reason: "must be an RFC 3339 timestamp"}
			}
		}
		return reliability.NewWindow(start, end)
	}

	span := fallback
	if days := q.Get("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return reliability.Window{}, &reliability.ConfigError{Field: "days", Reason: "must be a positive integer"}
		}
		span = time.Duration(n) * 24 * time.Hour
	}
	return reliability.NewWindow(end.Add(-span), end)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	respond(w, r, status, map[string]any{
		"status":    overall,
		"checks":    checks,
		"timestamp": h.now().UTC(),
	})
}

// ChargerView is a registry entry with its last known state.
type ChargerView struct {
	domain.Charger
	LiveState *store.LiveState `json:"live_state,omitempty" msgpack:"live_state,omitempty"`
}

func (h *Handler) ListChargers(w http.ResponseWriter, r *http.Request) {
	chargers, err := h.registry.ListChargers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	var live map[string]store.LiveState
	if h.live != nil && len(chargers) > 0 {
		ids := make([]string, len(chargers))
		for i, c := range chargers {
			ids[i] = c.ChargerID
		}
		if live, err = h.live.LiveStates(r.Context(), ids); err != nil {
			h.log.WithError(err).Warn("live state lookup failed")
		}
	}

	views := make([]ChargerView, len(chargers))
	for i, c := range chargers {
		views[i] = ChargerView{Charger: c}
		if st, ok := live[c.ChargerID]; ok {
			views[i].LiveState = &st
		}
	}
	respond(w, r, http.StatusOK, map[string]any{
		"chargers": views,
		"count":    len(views),
	})
}

func (h *Handler) Reliability(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		respondError(w, r, NewBadRequestError("scope is required", nil))
		return
	}
	kind, err := reliability.ParseScopeKind(raw)
	if err != nil {
		respondError(w, r, err)
		return
	}
	win, err := h.window(r, h.defaultWindow)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rep, err := h.reports.Report(r.Context(), reliability.Scope{Kind: kind, ID: r.URL.Query().Get("id")}, win)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rep)
}

func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	kind, err := reliability.ParseScopeKind(r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	win, err := h.window(r, h.defaultWindow)
	if err != nil {
		respondError(w, r, err)
		return
	}

	reports, err := h.reports.Breakdown(r.Context(), kind, win)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"scope":   kind,
		"reports": reports,
		"count":   len(reports),
	})
}

type impactView struct {
	SessionID   string  `json:"session_id" msgpack:"session_id"`
	LostMinutes float64 `json:"lost_minutes" msgpack:"lost_minutes"`
}

type chargerDetailResponse struct {
	Report         *reliability.Report         `json:"report" msgpack:"report"`
	Charger        domain.Charger              `json:"charger" msgpack:"charger"`
	Intervals      []reliability.StateInterval `json:"intervals" msgpack:"intervals"`
	Episodes       []reliability.Episode       `json:"episodes" msgpack:"episodes"`
	SessionImpacts []impactView                `json:"session_impacts" msgpack:"session_impacts"`
	SessionStats   reliability.SessionStats    `json:"session_stats" msgpack:"session_stats"`
	LastStatus     *reliability.LastStatus     `json:"last_status" msgpack:"last_status"`
}

func (h *Handler) ChargerReliability(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r, h.defaultWindow)
	if err != nil {
		respondError(w, r, err)
		return
	}

	d, err := h.reports.ChargerDetail(r.Context(), chi.URLParam(r, "chargerID"), win)
	if err != nil {
		respondError(w, r, err)
		return
	}

	impacts := make([]impactView, len(d.Impacts))
	for i, im := range d.Impacts {
		impacts[i] = impactView{SessionID: im.SessionID, LostMinutes: im.LostMinutes()}
	}
	respond(w, r, http.StatusOK, chargerDetailResponse{
		Report:         d.Report,
		Charger:        d.Charger,
		Intervals:      d.Intervals,
		Episodes:       d.Episodes,
		SessionImpacts: impacts,
		SessionStats:   d.Sessions,
		LastStatus:     d.LastStatus,
	})
}

func (h *Handler) ActiveAlerts(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r, defaultAlertDays*24*time.Hour)
	if err != nil {
		respondError(w, r, err)
		return
	}

	alerts, err := h.reports.ActiveAlerts(r.Context(), win)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"alerts":       alerts,
		"count":        len(alerts),
		"window_start": win.Start,
		"window_end":   win.End,
	})
}

type statusRequest struct {
	ChargerID   string    `json:"charger_id"`
	ConnectorID int       `json:"connector_id"`
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state"`
	ErrorCode   string    `json:"error_code"`
}

// PostStatus accepts a batch of status pings. The batch is validated as a
// whole before any ping is dispatched.
func (h *Handler) PostStatus(w http.ResponseWriter, r *http.Request) {
	var req []statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	received := h.now().UTC()
	obs := make([]*domain.Observation, 0, len(req))
	for i, p := range req {
		state, err := domain.ParseState(p.State)
		if err != nil {
			respondError(w, r, NewBadRequestError(fmt.Sprintf("ping %d", i), err))
			return
		}
		if p.ChargerID == "" || p.Timestamp.IsZero() {
			respondError(w, r, NewBadRequestError(fmt.Sprintf("ping %d: charger_id and timestamp are required", i), nil))
			return
		}
		obs = append(obs, &domain.Observation{
			ChargerID:   p.ChargerID,
			ConnectorID: p.ConnectorID,
			Timestamp:   p.Timestamp.UTC(),
			State:       state,
			ErrorCode:   p.ErrorCode,
			ReceivedAt:  received,
		})
	}

	for _, o := range obs {
		if err := h.ingest.Ingest("http", o); err != nil {
			respondError(w, r, err)
			return
		}
	}
	respond(w, r, http.StatusAccepted, map[string]int{"accepted": len(obs)})
}

type sessionRequest struct {
	SessionID string    `json:"session_id"`
	ChargerID string    `json:"charger_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	EnergyKWh float64   `json:"energy_kwh"`
}

func (h *Handler) PostSessions(w http.ResponseWriter, r *http.Request) {
	var req []sessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	sessions := make([]domain.Session, 0, len(req))
	for i, s := range req {
		id, err := uuid.Parse(s.SessionID)
		if err != nil {
			respondError(w, r, NewBadRequestError(fmt.Sprintf("session %d: session_id must be a uuid", i), err))
			return
		}
		if s.ChargerID == "" {
			respondError(w, r, NewBadRequestError(fmt.Sprintf("session %d: charger_id is required", i), nil))
			return
		}
		if s.End.Before(s.Start) {
			respondError(w, r, NewBadRequestError(fmt.Sprintf("session %d: end is before start", i), nil))
			return
		}
		sessions = append(sessions, domain.Session{
			SessionID: id.String(),
			ChargerID: s.ChargerID,
			Start:     s.Start.UTC(),
			End:       s.End.UTC(),
			EnergyKWh: s.EnergyKWh,
		})
	}

	if len(sessions) > 0 {
		if err := h.sessions.InsertSessions(r.Context(), sessions); err != nil {
			respondError(w, r, err)
			return
		}
	}
	respond(w, r, http.StatusCreated, map[string]int{"inserted": len(sessions)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewBadRequestError("malformed request body", err)
	}
	return nil
}

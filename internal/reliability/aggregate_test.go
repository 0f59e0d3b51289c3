package reliability

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charger-monitor/reliability/internal/domain"
)

var chargerScope = Scope{Kind: ScopeCharger, ID: "CHR-1"}

func faultFrom10To40() []domain.Observation {
	return []domain.Observation{
		ping("CHR-1", 0, domain.StateAvailable),
		ping("CHR-1", 10, domain.StateFaulted),
		ping("CHR-1", 40, domain.StateAvailable),
		ping("CHR-1", 60, domain.StateAvailable),
	}
}

// These pings are 30 minutes apart, so the gap limit must allow it.
var wideGapParams = Params{MaxPingGap: 30 * time.Minute, MergeTolerance: 10 * time.Minute}

func TestSteadyAvailableWindow(t *testing.T) {
	w := hour(t)
	res := mustCompute(t, "CHR-1", timeline("CHR-1", nil), nil, w, DefaultParams())
	require.Len(t, res.Intervals, 1)
	assert.Equal(t, domain.StateAvailable, res.Intervals[0].State)

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	assert.Equal(t, 1.0, rep.UptimeRatio)
	assert.Equal(t, 1.0, rep.ObservedRatio)
	assert.Zero(t, rep.FaultCount)
	assert.Zero(t, rep.FaultRate)
	assert.Nil(t, rep.MTBF)
	assert.Nil(t, rep.MTTR)
	assert.Empty(t, rep.ActiveAlerts)
	assert.Empty(t, rep.Warnings)
}

func TestClosedFaultMetrics(t *testing.T) {
	w := hour(t)
	res := mustCompute(t, "CHR-1", faultFrom10To40(), nil, w, wideGapParams)
	assert.Equal(t, []span{
		{domain.StateAvailable, 0, 10},
		{domain.StateFaulted, 10, 40},
		{domain.StateAvailable, 40, 60},
	}, spans(res.Intervals))

	require.Len(t, res.Episodes, 1)
	ep := res.Episodes[0]
	assert.False(t, ep.Open())
	assert.Equal(t, 30*time.Minute, ep.Duration(w))

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	assert.Equal(t, 0.5, rep.UptimeRatio)
	require.NotNil(t, rep.MTTR)
	assert.Equal(t, 30.0, *rep.MTTR)
	require.NotNil(t, rep.MTBF)
	assert.Equal(t, 60.0, *rep.MTBF)
	assert.Equal(t, 1, rep.FaultCount)
	assert.Zero(t, rep.OfflineCount)
	// One fault in one charger-hour.
	assert.InDelta(t, 24.0, rep.FaultRate, 1e-9)
}

func TestShortBlipMergesIntoOneFault(t *testing.T) {
	w := hour(t)
	obs := timeline("CHR-1", map[int]domain.State{10: domain.StateFaulted, 15: domain.StateFaulted, 25: domain.StateFaulted})
	obs = append(obs, ping("CHR-1", 22, domain.StateFaulted))

	res := mustCompute(t, "CHR-1", obs, nil, w, Params{MaxPingGap: 15 * time.Minute, MergeTolerance: 5 * time.Minute})
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, EpisodeFault, res.Episodes[0].Kind)

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	assert.Equal(t, 1, rep.FaultCount)
	require.NotNil(t, rep.MTTR)
	assert.Equal(t, 20.0, *rep.MTTR)
	// The blip is up time; only the faulted intervals count against uptime.
	assert.InDelta(t, 42.0/60.0, rep.UptimeRatio, 1e-12)
}

func TestOpenFaultTailIsActive(t *testing.T) {
	w := hour(t)
	obs := timeline("CHR-1", map[int]domain.State{55: domain.StateFaulted})[:12]
	res := mustCompute(t, "CHR-1", obs, nil, w, DefaultParams())

	last := res.Intervals[len(res.Intervals)-1]
	assert.Equal(t, span{domain.StateFaulted, 55, 60}, spans(res.Intervals)[len(res.Intervals)-1])
	assert.True(t, last.CensoredEnd)

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	require.Len(t, rep.ActiveAlerts, 1)
	assert.Equal(t, ActiveAlert{ChargerID: "CHR-1", Kind: EpisodeFault, Start: at(55)}, rep.ActiveAlerts[0])
	assert.Nil(t, rep.MTTR)
	assert.Equal(t, 1, rep.FaultCount)
}

func TestFaultStillOpenWhenOfflineAtWindowEnd(t *testing.T) {
	w := hour(t)
	obs := timeline("CHR-1", map[int]domain.State{50: domain.StateFaulted, 55: domain.StateFaulted, 60: domain.StateOffline})
	res := mustCompute(t, "CHR-1", obs, nil, w, DefaultParams())

	require.Len(t, res.Episodes, 1)
	assert.True(t, res.Episodes[0].Open())

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	require.Len(t, rep.ActiveAlerts, 1)
	assert.Equal(t, ActiveAlert{ChargerID: "CHR-1", Kind: EpisodeFault, Start: at(50)}, rep.ActiveAlerts[0])
	assert.Nil(t, rep.MTTR)
}

func TestLostSessionMinutesInsideFault(t *testing.T) {
	w := hour(t)
	sessions := []domain.Session{session("s1", 20, 35)}
	res := mustCompute(t, "CHR-1", faultFrom10To40(), sessions, w, wideGapParams)

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	assert.Equal(t, 15.0, rep.LostSessionMinutes)
	assert.Equal(t, 1, rep.SessionCount)
}

func TestComputeChargerSessionStats(t *testing.T) {
	w := hour(t)
	sessions := []domain.Session{session("s2", 30, 50), session("s1", 5, 15)}
	sessions[0].EnergyKWh = 20
	sessions[1].EnergyKWh = 4.5
	res := mustCompute(t, "CHR-1", faultFrom10To40(), sessions, w, wideGapParams)

	st := res.Sessions
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 24.5, st.TotalEnergyKWh)
	require.NotNil(t, st.AvgDurationMinutes)
	assert.Equal(t, 15.0, *st.AvgDurationMinutes)
	require.NotNil(t, st.FirstSession)
	assert.True(t, st.FirstSession.Equal(at(5)))
	require.NotNil(t, st.LastSession)
	assert.True(t, st.LastSession.Equal(at(50)))

	require.NotNil(t, res.LastStatus)
	assert.Equal(t, LastStatus{State: domain.StateAvailable, ObservedAt: at(60)}, *res.LastStatus)

	empty := SummarizeSessions(nil)
	assert.Zero(t, empty.Count)
	assert.Nil(t, empty.AvgDurationMinutes)
	assert.Nil(t, empty.FirstSession)
}

func TestAggregateEmptyInput(t *testing.T) {
	w := hour(t)
	res := mustCompute(t, "CHR-9", nil, []domain.Session{session("s1", 5, 25)}, w, DefaultParams())
	require.NotNil(t, res.Warning)
	assert.Nil(t, res.LastStatus)
	assert.Equal(t, []span{{domain.StateUnknown, 0, 60}}, spans(res.Intervals))

	rep := Aggregate(Scope{Kind: ScopeCharger, ID: "CHR-9"}, w, []ChargerResult{res})
	assert.Equal(t, 1.0, rep.UptimeRatio)
	assert.Zero(t, rep.ObservedRatio)
	assert.Zero(t, rep.LostSessionMinutes)
	assert.Equal(t, 1, rep.SessionCount)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "CHR-9")
}

func TestAggregateNoChargers(t *testing.T) {
	rep := Aggregate(Scope{Kind: ScopeSite, ID: "S-EMPTY"}, hour(t), nil)
	assert.Equal(t, 1.0, rep.UptimeRatio)
	assert.Nil(t, rep.MTBF)
	assert.NotNil(t, rep.ActiveAlerts)
}

func TestAggregatePoolsEpisodes(t *testing.T) {
	w := hour(t)
	// Two 10 minute faults on one charger, one 40 minute fault on the other.
	a := mustCompute(t, "CHR-A", timeline("CHR-A", map[int]domain.State{
		10: domain.StateFaulted, 15: domain.StateFaulted,
		40: domain.StateFaulted, 45: domain.StateFaulted,
	}), nil, w, DefaultParams())
	b := mustCompute(t, "CHR-B", timeline("CHR-B", map[int]domain.State{
		10: domain.StateFaulted, 15: domain.StateFaulted, 20: domain.StateFaulted, 25: domain.StateFaulted,
		30: domain.StateFaulted, 35: domain.StateFaulted, 40: domain.StateFaulted, 45: domain.StateFaulted,
	}), nil, w, DefaultParams())
	require.Len(t, a.Episodes, 2)
	require.Len(t, b.Episodes, 1)

	rep := Aggregate(Scope{Kind: ScopeSite, ID: "S-1"}, w, []ChargerResult{b, a})
	assert.Equal(t, 2, rep.ChargerCount)
	assert.Equal(t, 3, rep.FaultCount)
	assert.InDelta(t, 60.0/120.0, rep.UptimeRatio, 1e-12)
	require.NotNil(t, rep.MTTR)
	assert.Equal(t, 20.0, *rep.MTTR)
	require.NotNil(t, rep.MTBF)
	assert.Equal(t, 40.0, *rep.MTBF)
	// Three faults over two charger-hours.
	assert.InDelta(t, 36.0, rep.FaultRate, 1e-9)
}

func TestAggregateStartCensoredNotCounted(t *testing.T) {
	w := hour(t)
	obs := append([]domain.Observation{ping("CHR-1", -5, domain.StateFaulted)}, timeline("CHR-1", nil)[2:]...)
	res := mustCompute(t, "CHR-1", obs, nil, w, DefaultParams())
	require.Len(t, res.Episodes, 1)

	rep := Aggregate(chargerScope, w, []ChargerResult{res})
	assert.Zero(t, rep.FaultCount)
	assert.Nil(t, rep.MTBF)
	require.NotNil(t, rep.MTTR)
	assert.Equal(t, 10.0, *rep.MTTR)
	assert.InDelta(t, 50.0/60.0, rep.UptimeRatio, 1e-12)
}

func TestUptimeBoundProperty(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	w := hour(t)
	for i := 0; i < 300; i++ {
		res := mustCompute(t, "CHR-1", randomPings(r, "CHR-1"), randomSessions(r, "CHR-1"), w, DefaultParams())
		rep := Aggregate(chargerScope, w, []ChargerResult{res})

		assert.GreaterOrEqual(t, rep.UptimeRatio, 0.0)
		assert.LessOrEqual(t, rep.UptimeRatio, 1.0)

		hasOutage := false
		for _, iv := range res.Intervals {
			hasOutage = hasOutage || iv.State.IsOutage()
		}
		assert.Equal(t, !hasOutage, rep.UptimeRatio == 1.0)
	}
}

func TestDuplicatePingsDoNotChangeReport(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	w := hour(t)
	for i := 0; i < 100; i++ {
		obs := randomPings(r, "CHR-1")
		sessions := randomSessions(r, "CHR-1")
		doubled := append(append([]domain.Observation{}, obs...), obs...)

		once := Aggregate(chargerScope, w, []ChargerResult{mustCompute(t, "CHR-1", obs, sessions, w, DefaultParams())})
		twice := Aggregate(chargerScope, w, []ChargerResult{mustCompute(t, "CHR-1", doubled, sessions, w, DefaultParams())})
		assert.Equal(t, once, twice)
	}
}

func TestInputOrderDoesNotChangeReport(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	w := hour(t)
	for i := 0; i < 100; i++ {
		obs := randomPings(r, "CHR-1")
		shuffled := append([]domain.Observation{}, obs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		want := Aggregate(chargerScope, w, []ChargerResult{mustCompute(t, "CHR-1", obs, nil, w, DefaultParams())})
		got := Aggregate(chargerScope, w, []ChargerResult{mustCompute(t, "CHR-1", shuffled, nil, w, DefaultParams())})
		assert.Equal(t, want, got)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	w := hour(t)
	scope := Scope{Kind: ScopeModel, ID: "ACME-50"}

	type input struct {
		id       string
		obs      []domain.Observation
		sessions []domain.Session
	}
	inputs := make([]input, 40)
	for i := range inputs {
		id := fmt.Sprintf("CHR-%03d", i)
		inputs[i] = input{id: id, obs: randomPings(r, id), sessions: randomSessions(r, id)}
	}

	sequential := make([]ChargerResult, 0, len(inputs))
	for _, in := range inputs {
		sequential = append(sequential, mustCompute(t, in.id, in.obs, in.sessions, w, DefaultParams()))
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		parallel []ChargerResult
	)
	for _, in := range inputs {
		wg.Add(1)
		go func(in input) {
			defer wg.Done()
			res, err := ComputeCharger(domain.Charger{ChargerID: in.id}, in.obs, in.sessions, w, DefaultParams())
			if err != nil {
				return
			}
			mu.Lock()
			parallel = append(parallel, res)
			mu.Unlock()
		}(in)
	}
	wg.Wait()
	require.Len(t, parallel, len(inputs))

	assert.Equal(t, Aggregate(scope, w, sequential), Aggregate(scope, w, parallel))
}

func TestComputeChargerFailsFast(t *testing.T) {
	_, err := ComputeCharger(domain.Charger{ChargerID: "CHR-1"}, nil, nil, hour(t), Params{MaxPingGap: time.Minute, MergeTolerance: -1})
	var cErr *ConfigError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, "merge_tolerance", cErr.Field)

	_, err = ComputeCharger(domain.Charger{ChargerID: "CHR-1"}, nil, nil, Window{Start: at(10), End: at(0)}, DefaultParams())
	var wErr *InvalidWindowError
	assert.True(t, errors.As(err, &wErr))
}

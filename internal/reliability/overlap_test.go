package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charger-monitor/reliability/internal/domain"
)

func session(id string, start, end int) domain.Session {
	return domain.Session{SessionID: id, ChargerID: "CHR-1", Start: at(start), End: at(end)}
}

func episode(start int, end *int) Episode {
	ep := Episode{ChargerID: "CHR-1", Kind: EpisodeFault, Start: at(start)}
	if end != nil {
		ep.End = ptr(at(*end))
	}
	return ep
}

func intp(v int) *int { return &v }

func TestSessionOverlap(t *testing.T) {
	w := hour(t)
	eps := []Episode{
		episode(40, intp(45)),
		episode(10, intp(20)),
		episode(55, nil),
	}
	sessions := []domain.Session{
		session("contained", 12, 18),
		session("spanning", 15, 50),
		session("clean", 25, 35),
		session("tail", 50, 90),
		session("before", -30, -10),
		session("backwards", 30, 20),
	}

	impacts, err := SessionOverlap(sessions, eps, w)
	require.NoError(t, err)
	require.Len(t, impacts, len(sessions))

	got := map[string]time.Duration{}
	for _, im := range impacts {
		got[im.SessionID] = im.Overlap
	}
	assert.Equal(t, 6*time.Minute, got["contained"])
	assert.Equal(t, 10*time.Minute, got["spanning"])
	assert.Zero(t, got["clean"])
	assert.Equal(t, 5*time.Minute, got["tail"])
	assert.Zero(t, got["before"])
	assert.Zero(t, got["backwards"])

	assert.Equal(t, "before", impacts[0].SessionID)
}

func TestSessionOverlapOverlappingSessions(t *testing.T) {
	// Two connectors charging at once both lose time to the same outage.
	eps := []Episode{episode(10, intp(30))}
	sessions := []domain.Session{session("long", 0, 60), session("short", 5, 15)}

	impacts, err := SessionOverlap(sessions, eps, hour(t))
	require.NoError(t, err)
	require.Len(t, impacts, 2)
	assert.Equal(t, 20*time.Minute, impacts[0].Overlap)
	assert.Equal(t, 5*time.Minute, impacts[1].Overlap)
	assert.Equal(t, 5.0, impacts[1].LostMinutes())
}

func TestSessionOverlapWithoutEpisodes(t *testing.T) {
	impacts, err := SessionOverlap([]domain.Session{session("s", 0, 30)}, nil, hour(t))
	require.NoError(t, err)
	require.Len(t, impacts, 1)
	assert.Zero(t, impacts[0].Overlap)
}

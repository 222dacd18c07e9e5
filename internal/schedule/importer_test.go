// SPDX-License-Identifier: MIT

package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecarr/racecarr/internal/f1api"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/store"
)

type fakeProvider struct {
	season f1api.SeasonPayload
	rounds map[int]f1api.RoundPayload
	err    error
}

func (f *fakeProvider) Season(_ context.Context, _ int) (f1api.SeasonPayload, error) {
	return f.season, f.err
}

func (f *fakeProvider) Round(_ context.Context, _, round int) (f1api.RoundPayload, error) {
	if p, ok := f.rounds[round]; ok {
		return p, nil
	}
	return f1api.RoundPayload{}, &f1api.Error{Op: "fetch", Status: 502, Transient: true}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func slot(date, tod string) *f1api.SessionTime {
	return &f1api.SessionTime{Date: date, Time: tod}
}

func race(round int, name string, sched *f1api.Schedule) f1api.Race {
	return f1api.Race{
		Round:    f1api.FlexInt(round),
		RaceName: name,
		Circuit:  f1api.Circuit{CircuitName: "Circuit", City: "City", Country: "Country"},
		Schedule: sched,
	}
}

func TestRefreshSeasonMergesRoundsAndEvents(t *testing.T) {
	st := newTestStore(t)
	provider := &fakeProvider{
		season: f1api.SeasonPayload{Races: []f1api.Race{
			race(6, "FORMULA 1 AWS GRAND PRIX DU CANADA 2024", &f1api.Schedule{
				Race:  slot("2024-06-09", "18:00:00Z"),
				Qualy: slot("2024-06-08", "20:00:00Z"),
				FP1:   slot("2024-06-07", "17:30:00Z"),
				FP2:   nil, // null session: no FP2 row created
			}),
		}},
		rounds: map[int]f1api.RoundPayload{},
	}

	im := NewImporter(provider, st)
	season, err := im.RefreshSeason(context.Background(), 2024)
	require.NoError(t, err)
	assert.NotNil(t, season.LastRefreshed)

	rounds, err := st.ListRounds(context.Background(), season.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, 6, rounds[0].RoundNumber)
	assert.Equal(t, "Grand Prix Du Canada", rounds[0].Name, "sponsor and year stripped")
	assert.Equal(t, "FORMULA 1 AWS GRAND PRIX DU CANADA 2024", rounds[0].RawName)

	_, err = st.EventByType(context.Background(), rounds[0].ID, model.SessionRace)
	require.NoError(t, err)
	_, err = st.EventByType(context.Background(), rounds[0].ID, model.SessionFP2)
	assert.ErrorIs(t, err, store.ErrNotFound, "null FP2 creates no event")
}

func TestRoundPayloadWins(t *testing.T) {
	st := newTestStore(t)

	seasonRace := race(6, "Canadian Grand Prix", &f1api.Schedule{
		Race: slot("2024-06-09", "18:00:00Z"),
		FP2:  slot("2024-06-07", "21:00:00Z"),
	})
	roundRace := race(6, "Canadian Grand Prix", &f1api.Schedule{
		Race: slot("2024-06-09", "19:00:00Z"), // disagreement: round wins
		FP2:  nil,                             // round-endpoint null deletes FP2
	})
	roundRace.Winner = &f1api.DriverRef{Name: "Max", Surname: "Verstappen"}

	provider := &fakeProvider{
		season: f1api.SeasonPayload{Races: []f1api.Race{seasonRace}},
		rounds: map[int]f1api.RoundPayload{6: {Races: []f1api.Race{roundRace}}},
	}

	im := NewImporter(provider, st)
	season, err := im.RefreshSeason(context.Background(), 2024)
	require.NoError(t, err)

	rounds, err := st.ListRounds(context.Background(), season.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "Max Verstappen", rounds[0].Winner)

	ev, err := st.EventByType(context.Background(), rounds[0].ID, model.SessionRace)
	require.NoError(t, err)
	assert.Equal(t, 19, ev.StartUTC.Hour())

	_, err = st.EventByType(context.Background(), rounds[0].ID, model.SessionFP2)
	assert.ErrorIs(t, err, store.ErrNotFound, "round endpoint asserting null deletes the row")
}

func TestRefreshIsIdempotentOnKeys(t *testing.T) {
	st := newTestStore(t)
	provider := &fakeProvider{
		season: f1api.SeasonPayload{Races: []f1api.Race{
			race(1, "Bahrain Grand Prix", &f1api.Schedule{Race: slot("2024-03-02", "15:00:00Z")}),
		}},
		rounds: map[int]f1api.RoundPayload{},
	}
	im := NewImporter(provider, st)

	season1, err := im.RefreshSeason(context.Background(), 2024)
	require.NoError(t, err)
	rounds1, err := st.ListRounds(context.Background(), season1.ID)
	require.NoError(t, err)

	season2, err := im.RefreshSeason(context.Background(), 2024)
	require.NoError(t, err)
	rounds2, err := st.ListRounds(context.Background(), season2.ID)
	require.NoError(t, err)

	assert.Equal(t, season1.ID, season2.ID)
	require.Len(t, rounds2, 1)
	assert.Equal(t, rounds1[0].ID, rounds2[0].ID, "re-running with no provider change keeps keys")
}

func TestProviderFailureLeavesStoreUntouched(t *testing.T) {
	st := newTestStore(t)
	im := NewImporter(&fakeProvider{err: &f1api.Error{Op: "fetch", Status: 500, Transient: true}}, st)

	_, err := im.RefreshSeason(context.Background(), 2024)
	require.Error(t, err)

	seasons, err := st.ListSeasons(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestCleanRaceName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"FORMULA 1 GULF AIR BAHRAIN GRAND PRIX 2025", "Bahrain Grand Prix"},
		{"Bahrain Grand Prix", "Bahrain Grand Prix"},
		{"FORMULA 1 ROLEX AUSTRALIAN GRAND PRIX 2024", "Australian Grand Prix"},
		{"Miami Grand Prix 2024", "Miami Grand Prix"},
	}
	for _, tc := range cases {
		clean, raw := CleanRaceName(tc.in)
		assert.Equal(t, tc.want, clean, tc.in)
		assert.Equal(t, tc.in, raw)
	}
}

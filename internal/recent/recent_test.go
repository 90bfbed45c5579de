package recent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rubiojr/gaswatch/pkg/api"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data    map[string][]byte
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Load(_ context.Context, key string, v any) (bool, error) {
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (m *memStore) Save(_ context.Context, key string, v any) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func ids(stations []api.Station) []string {
	out := make([]string, 0, len(stations))
	for _, s := range stations {
		out = append(out, s.ID)
	}
	return out
}

func station(id string) api.Station {
	return api.Station{ID: id, TradeName: "Station " + id}
}

func TestRing_CapAndDedup(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)

	for _, id := range []string{"A", "B", "A", "C", "D", "E", "F"} {
		r.Add(ctx, station(id))
	}

	require.Equal(t, []string{"F", "E", "D", "C", "A"}, ids(r.List()))
}

func TestRing_ReviewMovesToFront(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)

	r.Add(ctx, station("A"))
	r.Add(ctx, station("B"))
	r.Add(ctx, station("C"))

	updated := station("A")
	updated.TradeName = "renamed"
	r.Add(ctx, updated)

	list := r.List()
	require.Equal(t, []string{"A", "C", "B"}, ids(list))
	require.Equal(t, "renamed", list[0].TradeName)
}

func TestRing_ListIsACopy(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	r.Add(ctx, station("A"))

	list := r.List()
	list[0].ID = "mutated"

	require.Equal(t, []string{"A"}, ids(r.List()))
}

func TestPush(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		add  string
		want []string
	}{
		{"empty", nil, "A", []string{"A"}},
		{"prepend", []string{"A", "B"}, "C", []string{"C", "A", "B"}},
		{"move", []string{"A", "B", "C"}, "C", []string{"C", "A", "B"}},
		{"truncate", []string{"A", "B", "C", "D", "E"}, "F", []string{"F", "A", "B", "C", "D"}},
		{"move full", []string{"A", "B", "C", "D", "E"}, "E", []string{"E", "A", "B", "C", "D"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var in []api.Station
			for _, id := range test.in {
				in = append(in, station(id))
			}
			got := Push(in, station(test.add))
			require.Equal(t, test.want, ids(got))
			require.Len(t, in, len(test.in), "input must not be modified")
		})
	}
}

func TestRing_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	r := New(store, nil)
	r.Add(ctx, station("A"))
	r.Add(ctx, station("B"))

	restored := New(store, nil)
	require.NoError(t, restored.Restore(ctx))
	require.Equal(t, []string{"B", "A"}, ids(restored.List()))

	restored.Clear(ctx)
	require.Empty(t, restored.List())

	again := New(store, nil)
	require.NoError(t, again.Restore(ctx))
	require.Empty(t, again.List())
}

func TestRing_RestoreEnforcesInvariants(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	var stations []api.Station
	for _, id := range []string{"A", "B", "A", "C", "D", "E", "F"} {
		stations = append(stations, station(id))
	}
	require.NoError(t, store.Save(ctx, storageKey, stations))

	r := New(store, nil)
	require.NoError(t, r.Restore(ctx))
	require.Equal(t, []string{"A", "B", "C", "D", "E"}, ids(r.List()))
}

func TestRing_SaveErrorKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.saveErr = errors.New("disk full")

	r := New(store, nil)
	r.Add(ctx, station("A"))

	require.Equal(t, []string{"A"}, ids(r.List()))
}

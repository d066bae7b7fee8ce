package control

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// fakeStatic is a Static adapter whose Import blocks on release until the
// test lets it proceed, so tests can force several EnsureUpdated calls to
// land while an import is still in flight.
type fakeStatic struct {
	src     source.Source
	calls   int32
	release chan struct{}
}

func (f *fakeStatic) Source() source.Source          { return f.src }
func (f *fakeStatic) RefreshInterval() time.Duration  { return time.Hour }
func (f *fakeStatic) Import(ctx context.Context, routes *store.RouteStore, stops *store.StopStore) error {
	atomic.AddInt32(&f.calls, 1)
	<-f.release
	return nil
}

func TestEnsureUpdatedUnknownSource(t *testing.T) {
	c := &StaticController{channels: map[source.Source]chan ensureUpdatedRequest{}}
	err := c.EnsureUpdated(context.Background(), source.MtaSubway)
	require.Error(t, err)
}

func TestEnsureUpdatedCoalescesConcurrentImports(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	const n = 3
	stale := time.Unix(0, 0)
	for i := 0; i < n; i++ {
		mock.ExpectExec("INSERT INTO source").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT updated_at FROM source").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(stale))
	}
	mock.ExpectExec("UPDATE source SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))

	dbHandle := store.DB{SQL: db}
	sources := store.NewSourceStore(dbHandle)
	routes := store.NewRouteStore(dbHandle)
	stops := store.NewStopStore(dbHandle)

	adapter := &fakeStatic{src: source.MtaSubway, release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zerolog.Nop()
	controller := RunStatic(ctx, log, sources, routes, stops, []Static{adapter})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = controller.EnsureUpdated(ctx, source.MtaSubway)
		}(i)
	}

	// Give every EnsureUpdated call a chance to land on the handler's
	// request channel before the import is allowed to finish, so the
	// assertion below actually exercises coalescing rather than n
	// sequential imports.
	time.Sleep(50 * time.Millisecond)
	close(adapter.release)

	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "waiter %d", i)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&adapter.calls), "import should run exactly once for coalesced requests")
}

func TestEnsureUpdatedSkipsImportWhenFresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO source").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT updated_at FROM source").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	dbHandle := store.DB{SQL: db}
	sources := store.NewSourceStore(dbHandle)
	routes := store.NewRouteStore(dbHandle)
	stops := store.NewStopStore(dbHandle)

	adapter := &fakeStatic{src: source.MtaBus, release: make(chan struct{})}
	close(adapter.release) // Import must never be called; unblock it just in case

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller := RunStatic(ctx, zerolog.Nop(), sources, routes, stops, []Static{adapter})

	err = controller.EnsureUpdated(ctx, source.MtaBus)
	require.NoError(t, err)
	require.EqualValues(t, 0, atomic.LoadInt32(&adapter.calls))
}

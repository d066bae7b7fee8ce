package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pq.Error{Code: "23503", Message: "insert or update on table violates foreign key constraint"}
	other := &pq.Error{Code: "23505", Message: "duplicate key"}

	assert.True(t, isForeignKeyViolation(fk))
	assert.False(t, isForeignKeyViolation(other))
	assert.False(t, isForeignKeyViolation(fmt.Errorf("plain error")))
	assert.False(t, isForeignKeyViolation(nil))
}

func TestIsForeignKeyViolationUnwrapsWrappedError(t *testing.T) {
	fk := &pq.Error{Code: "23503"}
	wrapped := fmt.Errorf("upserting trips: %w", fk)
	assert.True(t, isForeignKeyViolation(wrapped))

	wrappedTwice := fmt.Errorf("saving trips: %w", wrapped)
	assert.True(t, isForeignKeyViolation(wrappedTwice))
}

func TestAsPQErrorNoMatch(t *testing.T) {
	var target *pq.Error
	ok := asPQError(fmt.Errorf("context deadline exceeded"), &target)
	assert.False(t, ok)
	assert.Nil(t, target)
}

// fetchFeeds must skip a feed that fails (bad status, bad protobuf) without
// failing the whole tick, and return the ones that decode cleanly.
func TestFetchFeedsSkipsFailingURLs(t *testing.T) {
	goodMsg := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
	}
	goodBody, err := proto.Marshal(goodMsg)
	require.NoError(t, err)

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(goodBody)
	}))
	defer good.Close()

	badStatus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badStatus.Close()

	badBody := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a protobuf message"))
	}))
	defer badBody.Close()

	msgs := fetchFeeds(context.Background(), zerolog.Nop(), http.DefaultClient, []string{good.URL, badStatus.URL, badBody.URL})

	require.Len(t, msgs, 1)
	assert.Equal(t, "2.0", msgs[0].GetHeader().GetGtfsRealtimeVersion())
}

func TestFetchFeedsEmptyOnAllFailures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	msgs := fetchFeeds(context.Background(), zerolog.Nop(), http.DefaultClient, []string{bad.URL})
	assert.Empty(t, msgs)
}

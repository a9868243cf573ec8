package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/huckleberry/internal/core/auth"
	"github.com/trymwestin/huckleberry/internal/logging"
)

type staticTokens struct {
	sess auth.Session
	err  error
}

func (s *staticTokens) Token(ctx context.Context) (auth.Session, error) {
	return s.sess, s.err
}

func testTokens() *staticTokens {
	return &staticTokens{sess: auth.Session{
		IDToken:   "test-token",
		LocalID:   "user1",
		ExpiresAt: time.Now().Add(time.Hour),
	}}
}

func TestSleepIntervalsQuery(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery runQueryRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"document": {"name": "projects/p/databases/(default)/documents/users/user1/children/child1/sleepIntervals/a",
				"fields": {"start": {"integerValue": "1700000000"}, "duration": {"doubleValue": 3600.5}}}},
			{"document": {"name": ".../sleepIntervals/b",
				"fields": {"start": {"integerValue": "1700010000"}, "duration": {"integerValue": "600"}}}},
			{"readTime": "2024-01-01T00:00:00Z"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	got, err := c.SleepIntervals(context.Background(), "child1", 1700000000, 1700086400)
	require.NoError(t, err)

	assert.Equal(t, "/projects/proj/databases/(default)/documents/users/user1/children/child1:runQuery", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)

	sq := gotQuery.StructuredQuery
	require.Len(t, sq.From, 1)
	assert.Equal(t, "sleepIntervals", sq.From[0].CollectionID)
	require.NotNil(t, sq.Where)
	require.NotNil(t, sq.Where.CompositeFilter)
	assert.Equal(t, "AND", sq.Where.CompositeFilter.Op)
	require.Len(t, sq.Where.CompositeFilter.Filters, 2)
	lo := sq.Where.CompositeFilter.Filters[0].FieldFilter
	hi := sq.Where.CompositeFilter.Filters[1].FieldFilter
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, "GREATER_THAN_OR_EQUAL", lo.Op)
	assert.Equal(t, "1700000000", *lo.Value.IntegerValue)
	assert.Equal(t, "LESS_THAN", hi.Op)
	assert.Equal(t, "1700086400", *hi.Value.IntegerValue)
	require.Len(t, sq.OrderBy, 1)
	assert.Equal(t, "start", sq.OrderBy[0].Field.FieldPath)
	assert.Equal(t, "ASCENDING", sq.OrderBy[0].Direction)

	// Two documents, the readTime-only row is skipped.
	require.Len(t, got, 2)
	assert.Equal(t, int64(1700000000), got[0].Start)
	assert.Equal(t, 3600.5, got[0].DurationSeconds)
	assert.Equal(t, int64(1700010000), got[1].Start)
	assert.Equal(t, 600.0, got[1].DurationSeconds)
}

func TestFeedIntervalDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"document": {"name": ".../feedIntervals/a", "fields": {
				"start": {"integerValue": "1700000000"},
				"mode": {"stringValue": "breast"},
				"leftDuration": {"doubleValue": 900},
				"rightDuration": {"integerValue": "600"}}}},
			{"document": {"name": ".../feedIntervals/b", "fields": {
				"start": {"integerValue": "1700020000"},
				"type": {"stringValue": "bottle"},
				"bottleType": {"stringValue": "Formula"},
				"bottleAmount": {"doubleValue": 120},
				"bottleUnits": {"stringValue": "ml"}}}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	got, err := c.FeedIntervals(context.Background(), "child1", 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	nursing := got[0]
	assert.Equal(t, "breast", nursing.Mode)
	assert.Equal(t, 900.0, nursing.LeftSeconds)
	assert.Equal(t, 600.0, nursing.RightSeconds)
	assert.Nil(t, nursing.BottleType)
	assert.Nil(t, nursing.Amount)
	assert.Nil(t, nursing.BottleAmount)

	bottle := got[1]
	assert.Equal(t, "bottle", bottle.Type)
	require.NotNil(t, bottle.BottleType)
	assert.Equal(t, "Formula", *bottle.BottleType)
	require.NotNil(t, bottle.BottleAmount)
	assert.Equal(t, 120.0, *bottle.BottleAmount)
	assert.Equal(t, "ml", bottle.BottleUnits)
	assert.Zero(t, bottle.LeftSeconds)
}

func TestDiaperDefaultsAndDisplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"document": {"name": ".../diaperIntervals/a", "fields": {
				"start": {"integerValue": "1700000000"},
				"mode": {"stringValue": "poo"},
				"pooColor": {"stringValue": "yellow"},
				"amount": {"integerValue": "2"}}}},
			{"document": {"name": ".../diaperIntervals/b", "fields": {
				"start": {"integerValue": "1700001000"}}}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	got, err := c.DiaperChanges(context.Background(), "child1", 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "poo", got[0].Mode)
	require.NotNil(t, got[0].Color)
	assert.Equal(t, "yellow", *got[0].Color)
	require.NotNil(t, got[0].Amount)
	assert.Equal(t, "2", *got[0].Amount)
	assert.Nil(t, got[0].Consistency)

	// Missing mode falls back to unknown rather than empty.
	assert.Equal(t, "unknown", got[1].Mode)
	assert.Nil(t, got[1].Color)
}

func TestGrowthPartialMeasurements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"document": {"name": ".../healthEntries/a", "fields": {
				"start": {"integerValue": "1700000000"},
				"weight": {"doubleValue": 4.2},
				"height": {"integerValue": "55"}}}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	got, err := c.GrowthEntries(context.Background(), "child1", 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NotNil(t, got[0].Weight)
	assert.Equal(t, 4.2, *got[0].Weight)
	require.NotNil(t, got[0].Height)
	assert.Equal(t, 55.0, *got[0].Height)
	assert.Nil(t, got[0].Head)
}

func TestChildren(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[
			{"document": {"name": "projects/p/databases/(default)/documents/users/user1/children/abc123",
				"fields": {"name": {"stringValue": "Nora"}, "birthdate": {"stringValue": "2023-05-01"}}}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	got, err := c.Children(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/projects/proj/databases/(default)/documents/users/user1:runQuery", gotPath)
	require.Len(t, got, 1)
	assert.Equal(t, "abc123", got[0].UID)
	assert.Equal(t, "Nora", got[0].Name)
	assert.Equal(t, "2023-05-01", got[0].Birthdate)
}

func TestQueryHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"status": "PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj", testTokens(), logging.Discard())
	_, err := c.SleepIntervals(context.Background(), "child1", 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "sleepIntervals")
}

func TestQueryTokenError(t *testing.T) {
	tokens := &staticTokens{err: errors.New("no session")}
	c := NewClient("http://127.0.0.1:0", "proj", tokens, logging.Discard())
	_, err := c.FeedIntervals(context.Background(), "child1", 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
}

func TestValueDecode(t *testing.T) {
	raw := `{"mapValue": {"fields": {
		"n": {"integerValue": "42"},
		"f": {"doubleValue": 1.5},
		"s": {"stringValue": "hi"},
		"b": {"booleanValue": true},
		"t": {"timestampValue": "2024-03-01T12:00:00Z"},
		"z": {"nullValue": null},
		"a": {"arrayValue": {"values": [{"integerValue": "1"}, {"stringValue": "x"}]}}
	}}}`
	var v fsValue
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	m, ok := v.decode().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), m["n"])
	assert.Equal(t, 1.5, m["f"])
	assert.Equal(t, "hi", m["s"])
	assert.Equal(t, true, m["b"])
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), m["t"])
	assert.Nil(t, m["z"])
	assert.Equal(t, []any{int64(1), "x"}, m["a"])
}

func TestFieldsAccessors(t *testing.T) {
	f := fields{
		"count": int64(3),
		"ratio": 2.5,
		"label": "warm",
		"flag":  true,
	}

	assert.Equal(t, int64(3), f.int64Or("count", -1))
	assert.Equal(t, int64(2), f.int64Or("ratio", -1))
	assert.Equal(t, int64(-1), f.int64Or("missing", -1))
	assert.Equal(t, 3.0, f.numberOr("count", -1))
	assert.Equal(t, "warm", f.stringOr("label", "?"))
	assert.Equal(t, "?", f.stringOr("count", "?"))

	require.NotNil(t, f.optNumber("ratio"))
	assert.Equal(t, 2.5, *f.optNumber("ratio"))
	assert.Nil(t, f.optNumber("label"))

	assert.Equal(t, "3", *f.display("count"))
	assert.Equal(t, "2.5", *f.display("ratio"))
	assert.Equal(t, "warm", *f.display("label"))
	assert.Equal(t, "true", *f.display("flag"))
	assert.Nil(t, f.display("missing"))
}

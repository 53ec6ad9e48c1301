package egov

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
)

const lawsBody = `{
  "total_count": 3,
  "laws": [
    {"law_info": {"law_id": "129AC0000000089", "law_num": "明治二十九年法律第八十九号", "promulgation_date": "1896-04-27"},
     "revision_info": {"law_title": "民法", "abbrev": null}},
    {"law_info": {"law_id": "129AC0000000089", "law_num": "明治二十九年法律第八十九号", "promulgation_date": "1896-04-27"},
     "revision_info": {"law_title": "民法", "abbrev": null}},
    {"law_info": {"law_id": "132AC0000000048", "law_num": null, "promulgation_date": "1899-03-09"},
     "revision_info": {"law_title": "商法", "abbrev": "商"}}
  ]
}`

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL}, WithBackoffOptions(backoff.WithSleeper(noSleep)))
	require.NoError(t, err)
	return c
}

func TestSearchLawsDeduplicates(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2/laws", r.URL.Path)
		assert.Equal(t, "民法", r.URL.Query().Get("law_title"))
		_, _ = w.Write([]byte(lawsBody))
	})

	got, err := c.SearchLaws(context.Background(), " 民法 ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{
		LawID:            "129AC0000000089",
		LawNum:           "明治二十九年法律第八十九号",
		Title:            "民法",
		PromulgationDate: "1896-04-27",
	}, got[0])
	assert.Equal(t, "商", got[1].Abbrev)
	assert.Empty(t, got[1].LawNum)
}

func TestSearchLawsRejectsEmptyTitle(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{})
	require.NoError(t, err)
	_, err = c.SearchLaws(context.Background(), "  ")
	require.Error(t, err)
}

func TestGetJSONRetriesTemporaryFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(lawsBody))
		}
	})

	got, err := c.ListLaws(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONExhaustsOnPersistentServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := c.ListLaws(context.Background(), 10, 0)
	require.ErrorIs(t, err, backoff.ErrExhausted)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "down", statusErr.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.SearchLaws(context.Background(), "民法")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.False(t, statusErr.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONMalformedBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{"))
	})
	_, err := c.ListLaws(context.Background(), 10, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, backoff.ErrExhausted)
}

func TestLookupTitle(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("law_id") {
		case "132AC0000000048":
			_, _ = w.Write([]byte(lawsBody))
		case "gone":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte(`{"laws": []}`))
		}
	})

	ctx := context.Background()
	title, err := c.LookupTitle(ctx, "132AC0000000048")
	require.NoError(t, err)
	assert.Equal(t, "商法", title)

	title, err = c.LookupTitle(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, title)

	title, err = c.LookupTitle(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, title)
}

func TestFetchLawDataQuery(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2/law_data/129AC0000000089", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("response_format"))
		assert.Equal(t, "json", r.URL.Query().Get("law_full_text_format"))
		_, _ = w.Write([]byte(`{"law_info":{"law_id":"129AC0000000089"},"revision_info":{"law_title":"民法"},"law_full_text":{"tag":"Law"}}`))
	})

	data, err := c.FetchLawData(context.Background(), "129AC0000000089")
	require.NoError(t, err)
	assert.Equal(t, "民法", data.RevisionInfo.LawTitle)
	assert.JSONEq(t, `{"tag":"Law"}`, string(data.FullText))
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "not a url"})
	require.Error(t, err)
	_, err = NewClient(Config{Retries: -1})
	require.Error(t, err)

	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.base)
	assert.Equal(t, 30*time.Second, c.http.Timeout)
	assert.Equal(t, 3, c.exec.Attempts())
}

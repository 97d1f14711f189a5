package zabota_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/Houeta/callrelay-bot/internal/client/zabota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestFetchNewCalls_Success(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		// The platform serves JSON under text/html; the client must not care.
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {"data": [
				{
					"id": 42,
					"created_at": "2025-06-01T10:30:00",
					"storage": "stor-1",
					"uuid": "uuid-1",
					"variables": {
						"all_audio_record": "rec.mp3",
						"summarizing": {"outcome": "callback"},
						"dialog": [
							{"user": "hello"},
							{"assistant": {"state": "draft", "message": "ignored draft"}},
							{"assistant": {"state": "active", "message": "hi there"}},
							{"assistant": {"state": "last", "message": "bye"}}
						]
					}
				},
				{"id": 43, "created_at": "2025-06-01T10:40:00", "storage": "s", "uuid": "u"}
			]}
		}`))
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	since := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	until := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	calls, err := client.FetchNewCalls(t.Context(), "key-1", "bot-1", since, until)

	require.NoError(t, err)
	// The record without a variables blob is excluded, not failed.
	require.Len(t, calls, 1)

	call := calls[0]
	assert.Equal(t, int64(42), call.ID)
	assert.Equal(t, "2025-06-01T10:30:00", call.Time)
	assert.Equal(t, "https://client.za-bota.com/calls/storage/stor-1/uuid-1/rec.mp3", call.AudioLink)
	assert.JSONEq(t, `{"outcome": "callback"}`, call.Summary)
	assert.Equal(t, "transcription_42.txt", call.TranscriptFilename)

	assert.Contains(t, call.Transcript, "Call transcript ID: 42")
	assert.Contains(t, call.Transcript, "Client: hello")
	assert.Contains(t, call.Transcript, "Assistant: hi there")
	assert.Contains(t, call.Transcript, "Assistant: bye")
	assert.NotContains(t, call.Transcript, "ignored draft")

	// One bounded page, filtered by bot and update-time window.
	assert.Equal(t, "50", gotQuery.Get("limit"))
	assert.Equal(t, "1", gotQuery.Get("page"))
	assert.Equal(t, "updated_at", gotQuery.Get("sortBy"))
	assert.Equal(t, "updated_at", gotQuery.Get("filter_date"))
	assert.Equal(t, "2025-06-01T10:00:00", gotQuery.Get("date_time_start"))
	assert.Equal(t, "2025-06-01T11:00:00", gotQuery.Get("date_time_end"))
	assert.Equal(t, "bot-1", gotQuery.Get("filter"))
	assert.Equal(t, `["bot_id"]`, gotQuery.Get("filterOn"))
	assert.Equal(t, "key-1", gotQuery.Get("api_key"))
}

func TestFetchNewCalls_StringEncodedVariables(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {"data": [
				{
					"id": 7,
					"created_at": "2025-06-02T09:00:00",
					"storage": "stor-2",
					"uuid": "uuid-2",
					"variables": "{\"all_audio_record\": \"a.mp3\", \"summarizing\": \"free text summary\", \"dialog\": []}"
				}
			]}
		}`))
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "https://client.za-bota.com/calls/storage/stor-2/uuid-2/a.mp3", calls[0].AudioLink)
	// A summary that is not valid JSON itself is wrapped instead of dropped.
	assert.JSONEq(t, `{"raw_text": "free text summary"}`, calls[0].Summary)
}

func TestFetchNewCalls_LinkUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {"data": [
				{
					"id": 8,
					"created_at": "2025-06-02T09:10:00",
					"storage": "",
					"uuid": "uuid-3",
					"variables": {"all_audio_record": "a.mp3", "dialog": []}
				}
			]}
		}`))
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "link unavailable", calls[0].AudioLink)
	assert.Equal(t, "{}", calls[0].Summary)
}

func TestFetchNewCalls_HTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.Error(t, err)
	require.ErrorContains(t, err, "HTTP 500")
	assert.Nil(t, calls)
}

func TestFetchNewCalls_MalformedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.Error(t, err)
	require.ErrorContains(t, err, "failed to decode platform response")
	assert.Nil(t, calls)
}

func TestFetchNewCalls_UnsuccessfulEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "data": {}}`))
	}))
	defer server.Close()

	client := zabota.NewClient(testLogger(), server.URL, 5*time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestFetchNewCalls_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	client := zabota.NewClient(testLogger(), server.URL, time.Second)

	calls, err := client.FetchNewCalls(t.Context(), "k", "b", time.Now().Add(-time.Hour), time.Now())

	require.Error(t, err)
	assert.Nil(t, calls)
}

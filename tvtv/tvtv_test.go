package tvtv_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tvtv2xmltv/epg"
	"tvtv2xmltv/tvtv"
)

func newClient(t *testing.T, srv *httptest.Server, token string) *tvtv.Client {
	t.Helper()
	return tvtv.NewClient(srv.URL, "TEST", token, zerolog.Nop())
}

func TestFetchSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/lineup/TEST/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"stationId":5,"channelNumber":"5.1","stationCallSign":"Demo TV","logo":"/img/5.png"}]`)
	})
	mux.HandleFunc("/api/v1/lineup/TEST/grid/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[{"title":"News","subtitle":"Morning Edition","type":"N","flags":["HD","New"],"startTime":"2024-01-01T00:00:00Z","runTime":30}]]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	window := tvtv.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	snap, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)
	require.NoError(t, err)

	require.Len(t, snap.Channels, 1)
	ch := snap.Channels[0]
	require.Equal(t, "5", ch.ID)
	require.Equal(t, "5.1", ch.Number)
	require.Equal(t, "Demo TV", ch.Name)
	require.Equal(t, "/img/5.png", ch.Logo)

	require.Len(t, snap.Programmes, 1)
	p := snap.Programmes[0]
	require.Equal(t, "5", p.Channel)
	require.Equal(t, "News", p.Title)
	require.Equal(t, "Morning Edition", p.SubTitle)
	require.Equal(t, window.Start, p.Start)
	require.Equal(t, window.Start.Add(30*time.Minute), p.Stop)
	require.Equal(t, []string{"news"}, p.Categories)
	require.True(t, p.HD)
	require.True(t, p.New)
	require.False(t, p.Stereo)
}

func TestFetchSnapshotBatchesAndDays(t *testing.T) {
	stations := make([]string, 25)
	lineup := make([]string, 25)
	for i := range stations {
		stations[i] = fmt.Sprintf("%d", 100+i)
		lineup[i] = fmt.Sprintf(`{"stationId":%s,"channelNumber":"%d.1","stationCallSign":"CH%d"}`, stations[i], i+1, i+1)
	}

	var gridCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/lineup/TEST/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "["+strings.Join(lineup, ",")+"]")
	})
	mux.HandleFunc("/api/v1/lineup/TEST/grid/", func(w http.ResponseWriter, r *http.Request) {
		gridCalls.Add(1)
		ids := strings.Split(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], ",")
		require.LessOrEqual(t, len(ids), 20)
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(48 * time.Hour)}

	_, err := newClient(t, srv, "").FetchSnapshot(context.Background(), stations, window, time.UTC)
	require.NoError(t, err)

	// 2 batches of stations, 2 day slices
	require.Equal(t, int32(4), gridCalls.Load())
}

func TestFetchSnapshotSendsCredential(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	_, err := newClient(t, srv, "sekret").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)
	require.NoError(t, err)
}

func TestFetchSnapshotHTTPStatusError(t *testing.T) {
	var gridCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/lineup/TEST/channels", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/lineup/TEST/grid/", func(w http.ResponseWriter, r *http.Request) {
		gridCalls.Add(1)
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	_, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)

	var fe *tvtv.FetchError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Status, "500")
	require.Equal(t, int32(0), gridCalls.Load())
}

func TestFetchSnapshotMalformedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json at all`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	_, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)

	var pe *tvtv.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestFetchSnapshotNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	_, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)

	var fe *tvtv.FetchError
	require.ErrorAs(t, err, &fe)
	require.NotNil(t, errors.Unwrap(err))
}

func TestFetchSnapshotInputValidation(t *testing.T) {
	client := tvtv.NewClient("http://unused.invalid", "TEST", "", zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.FetchSnapshot(context.Background(), nil, tvtv.Window{Start: start, End: start.Add(time.Hour)}, time.UTC)
	require.Error(t, err)

	_, err = client.FetchSnapshot(context.Background(), []string{"5"}, tvtv.Window{Start: start, End: start}, time.UTC)
	require.Error(t, err)

	_, err = client.FetchSnapshot(context.Background(), []string{"5"}, tvtv.Window{Start: start.Add(time.Hour), End: start}, time.UTC)
	require.Error(t, err)
}

func TestFetchSnapshotSkipsUnparseableProgrammes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/lineup/TEST/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"stationId":"5","channelNumber":"5","stationCallSign":"Demo"}]`)
	})
	mux.HandleFunc("/api/v1/lineup/TEST/grid/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[
			{"title":"Broken","startTime":"yesterday-ish","runTime":30},
			{"title":"Fine","startTime":"2024-01-01T01:00:00Z","runTime":60}
		]]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	snap, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)
	require.NoError(t, err)
	require.Len(t, snap.Programmes, 1)
	require.Equal(t, "Fine", snap.Programmes[0].Title)
}

func TestFetchSnapshotIgnoresStationsOutsideLineup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/lineup/TEST/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"stationId":"5","channelNumber":"5.1","stationCallSign":"Demo"}]`)
	})
	mux.HandleFunc("/api/v1/lineup/TEST/grid/", func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		require.Equal(t, "5", ids)
		fmt.Fprint(w, `[[{"title":"News","startTime":"2024-01-01T00:00:00Z","runTime":30}]]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	snap, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5", "99"}, window, time.UTC)
	require.NoError(t, err)

	// station 99 is unknown to the lineup: no channel, no programmes, and
	// nothing left dangling for the serializer to reject
	require.Len(t, snap.Channels, 1)
	require.Len(t, snap.Programmes, 1)
	require.Equal(t, "5", snap.Programmes[0].Channel)

	_, err = epg.Build(snap, "")
	require.NoError(t, err)
}

func TestFetchSnapshotEmptyGrid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := tvtv.Window{Start: start, End: start.Add(time.Hour)}
	snap, err := newClient(t, srv, "").FetchSnapshot(context.Background(), []string{"5"}, window, time.UTC)
	require.NoError(t, err)
	require.Empty(t, snap.Channels)
	require.Empty(t, snap.Programmes)
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"ropesim/internal/metrics"
	"ropesim/internal/persistence/indexdb"
	"ropesim/internal/protocol"
	"ropesim/internal/runner"
	"ropesim/internal/sim/tuning"
)

const small = "R 4\nU 4\nL 3\nD 1\nR 4\nD 1\nL 5\nR 2\n"

type fixture struct {
	srv *httptest.Server
	idx *indexdb.SQLiteIndex
}

func newFixture(t *testing.T, tune tuning.Tuning, withIndex bool) fixture {
	t.Helper()
	var f fixture
	if withIndex {
		idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		f.idx = idx
	}
	reg := prometheus.NewRegistry()
	h := NewHandler(Config{
		Runner:   runner.New(runner.Config{Tuning: tune, Index: f.idx}),
		Index:    f.idx,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	})
	f.srv = httptest.NewServer(h)
	t.Cleanup(f.srv.Close)
	return f
}

func post(t *testing.T, url, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestSimulate_PlainText(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)

	resp, body := post(t, f.srv.URL+"/v1/simulate", "text/plain", small)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res protocol.ResultMsg
	require.NoError(t, json.Unmarshal(body, &res))
	require.Equal(t, protocol.TypeResult, res.Type)
	require.Len(t, res.Parts, 2)
	require.Equal(t, 13, res.Parts[0].Distinct)
	require.Equal(t, 1, res.Parts[1].Distinct)
}

func TestSimulate_FollowersQuery(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)

	resp, body := post(t, f.srv.URL+"/v1/simulate?followers=0,1", "text/plain", small)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res protocol.ResultMsg
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Parts, 2)
	require.Equal(t, 0, res.Parts[0].Followers)
	require.Equal(t, 13, res.Parts[1].Distinct)

	resp, body = post(t, f.srv.URL+"/v1/simulate?followers=x", "text/plain", small)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), protocol.ErrBadRequest)
}

func TestSimulate_FollowersAtCap(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)

	q := "?followers=" + strings.TrimSuffix(strings.Repeat("0,", protocol.MaxParts-1), ",") + ",1024"
	resp, body := post(t, f.srv.URL+"/v1/simulate"+q, "text/plain", "R 2\n")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res protocol.ResultMsg
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Parts, protocol.MaxParts)
	require.Equal(t, protocol.MaxFollowers, res.Parts[protocol.MaxParts-1].Followers)
}

func TestSimulate_JSONDocument(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)

	doc := `{"followers":[9],"commands":[
{"dir":"R","steps":5},{"dir":"U","steps":8},{"dir":"L","steps":8},{"dir":"D","steps":3},
{"dir":"R","steps":17},{"dir":"D","steps":10},{"dir":"L","steps":25},{"dir":"U","steps":20}]}`
	resp, body := post(t, f.srv.URL+"/v1/simulate", "application/json; charset=utf-8", doc)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res protocol.ResultMsg
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Parts, 1)
	require.Equal(t, 36, res.Parts[0].Distinct)
}

func TestSimulate_Errors(t *testing.T) {
	tune := tuning.Defaults()
	tune.Server.MaxBodyBytes = 64
	f := newFixture(t, tune, false)

	cases := []struct {
		name        string
		query       string
		contentType string
		body        string
		code        string
	}{
		{"bad letter", "", "text/plain", "R 4\nX 2\n", protocol.ErrParseDirection},
		{"bad magnitude", "", "text/plain", "R 0\n", protocol.ErrParseMagnitude},
		{"bad document", "", "application/json", `{"commands":[{"dir":"R"}]}`, protocol.ErrProtoBadRequest},
		{"too large", "", "text/plain", strings.Repeat("R 1\n", 40), protocol.ErrLimit},
		{"huge followers", "?followers=35184372088832", "text/plain", "R 1\n", protocol.ErrBadRequest},
		{"followers over cap", "?followers=1025", "text/plain", "R 1\n", protocol.ErrBadRequest},
		{"negative followers", "?followers=-1", "text/plain", "R 1\n", protocol.ErrBadRequest},
		{"too many parts", "?followers=" + strings.TrimSuffix(strings.Repeat("1,", protocol.MaxParts+1), ","), "text/plain", "R 1\n", protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := post(t, f.srv.URL+"/v1/simulate"+tc.query, tc.contentType, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			var em protocol.ErrorMsg
			require.NoError(t, json.Unmarshal(body, &em))
			require.Equal(t, tc.code, em.Code)
		})
	}
}

func TestRuns_IndexRoutes(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), true)

	resp, body := post(t, f.srv.URL+"/v1/simulate", "text/plain", small)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res protocol.ResultMsg
	require.NoError(t, json.Unmarshal(body, &res))

	resp, body = get(t, f.srv.URL+"/v1/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []indexdb.RunRow
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	require.Equal(t, res.RunID, runs[0].RunID)
	require.Equal(t, "http", runs[0].Source)

	resp, body = get(t, f.srv.URL+"/v1/runs/"+res.RunID+"/parts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var parts []indexdb.PartRow
	require.NoError(t, json.Unmarshal(body, &parts))
	require.Len(t, parts, 2)
	require.Equal(t, 13, parts[0].Distinct)

	resp, body = get(t, f.srv.URL+"/v1/runs/"+res.RunID+"/parts/part1/trail")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "..##.\n...##\n.####\n....#\ns###.\n", string(body))

	resp, _ = get(t, f.srv.URL+"/v1/runs/nope/parts")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, f.srv.URL+"/v1/runs/"+res.RunID+"/parts/part9/trail")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, f.srv.URL+"/v1/runs?limit=-1")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuns_WithoutIndex(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)
	resp, body := get(t, f.srv.URL+"/v1/runs")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, string(body), "run index disabled")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, tuning.Defaults(), false)

	resp, body := get(t, f.srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok\n", string(body))

	post(t, f.srv.URL+"/v1/simulate", "text/plain", small)
	resp, body = get(t, f.srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `ropesim_runs_total{code="OK",surface="http"} 1`)
	require.Contains(t, string(body), `ropesim_unit_steps_total{part="part1"} 24`)
}

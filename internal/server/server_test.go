package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/flightsim"
	"github.com/iwvelando/airframe-optimizer/internal/gateway"
	"github.com/iwvelando/airframe-optimizer/internal/optimizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const runConfig = `airframe:
  path: ../../test/test_airframe.yaml
targets:
  altitude: {min: 200, max: 250}
  duration: {min: 40, max: 45}
  stability: {min: 1, max: 2}
enabled:
  finCount: false
  noseWallThickness: false
  stage1Parachute: false
  stage2Parachute: false
`

type constantStability float64

func (c constantStability) Margin(*airframe.Airframe) float64 {
	return float64(c)
}

func stubLauncher(sim gateway.SimulatorFunc) Launcher {
	return func(logger *zap.Logger, cfg *config.Configuration, opts ...optimizer.Option) (*optimizer.Optimizer, error) {
		design, err := airframe.NewRepository(logger).Load(cfg.Airframe.Path)
		if err != nil {
			return nil, err
		}
		return optimizer.New(logger, cfg, optimizer.Dependencies{
			Airframe:  design,
			Simulator: sim,
			Stability: constantStability(1.5),
		}, opts...)
	}
}

func inTarget(context.Context, *airframe.Airframe) (flightsim.Outcome, error) {
	return flightsim.Outcome{Apogee: 230, Duration: 42}, nil
}

// gatedSimulator blocks every simulation until release is closed.
func gatedSimulator(release <-chan struct{}) gateway.SimulatorFunc {
	return func(ctx context.Context, _ *airframe.Airframe) (flightsim.Outcome, error) {
		select {
		case <-release:
			return flightsim.Outcome{Apogee: 230, Duration: 42}, nil
		case <-ctx.Done():
			return flightsim.Outcome{}, ctx.Err()
		}
	}
}

func newTestServer(t *testing.T, opts Options) (*Handler, *httptest.Server) {
	t.Helper()
	h := NewHandler(zap.NewNop(), opts)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return h, srv
}

func createRun(t *testing.T, srv *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/runs", "application/yaml", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created createRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func getRun(t *testing.T, srv *httptest.Server, id string) runView {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/runs/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view runView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func waitForState(t *testing.T, srv *httptest.Server, id string, state optimizer.State) runView {
	t.Helper()
	var view runView
	require.Eventually(t, func() bool {
		view = getRun(t, srv, id)
		return view.State == string(state)
	}, 10*time.Second, 10*time.Millisecond, "run never reached %s", state)
	return view
}

func TestVersion(t *testing.T) {
	_, srv := newTestServer(t, Options{Version: " 1.2.3 "})

	resp, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1.2.3", body["version"])
}

func TestCreateRunCompletes(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})

	id := createRun(t, srv, runConfig)
	view := waitForState(t, srv, id, optimizer.StateCompleted)

	require.NotNil(t, view.Best)
	assert.Equal(t, 0.0, view.Best.TotalScore)
	require.NotNil(t, view.Summary)
	assert.True(t, view.Summary.Improved)
	assert.Equal(t, 1, view.Progress.TotalPhases)
	assert.Equal(t, view.Progress.Total, view.Progress.Current)
	assert.NotNil(t, view.Finished)
}

func TestCreateRunAcceptsJSON(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})

	body := `{"airframe": {"path": "../../test/test_airframe.yaml"},
"targets": {"altitude": {"min": 200, "max": 250}, "stability": {"min": 1, "max": 2}},
"enabled": {"stage1Parachute": false, "stage2Parachute": false}}`
	id := createRun(t, srv, body)
	waitForState(t, srv, id, optimizer.StateCompleted)
}

func TestCreateRunRejectsInvalidConfiguration(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unsupported algorithm", runConfig + "algorithm: simplex\n", http.StatusBadRequest},
		{"missing airframe path", "targets: {}\n", http.StatusBadRequest},
		{"missing airframe file", strings.Replace(runConfig, "test_airframe.yaml", "missing.yaml", 1), http.StatusBadRequest},
		{"malformed document", "airframe: [unclosed\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/runs", "application/yaml", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCreateRunTooLarge(t *testing.T) {
	_, srv := newTestServer(t, Options{MaxUploadSize: 16, Launcher: stubLauncher(inTarget)})

	resp, err := http.Post(srv.URL+"/api/runs", "application/yaml", strings.NewReader(runConfig))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUnknownRun(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	for _, path := range []string{"/api/runs/nope", "/api/runs/nope/airframe"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/api/runs/nope/cancel", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	release := make(chan struct{})
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(gatedSimulator(release))})

	id := createRun(t, srv, runConfig)
	waitForState(t, srv, id, optimizer.StateRunning)

	resp, err := http.Post(srv.URL+"/api/runs/"+id+"/cancel", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view runView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, string(optimizer.StateCancelled), view.State)
	assert.Nil(t, view.Best)

	resp, err = http.Get(srv.URL + "/api/runs/" + id + "/airframe")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	reverted, err := airframe.Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	fins, _, err := reverted.LastFinSet()
	require.NoError(t, err)
	assert.Equal(t, 0.06, fins.Height)
}

func TestCancelBeforeRunStarts(t *testing.T) {
	release := make(chan struct{})
	h, _ := newTestServer(t, Options{})

	cfg, err := config.LoadConfigurationFromReader(strings.NewReader(runConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	rn := newRun(h.ctx, h.eventBuffer, nil)
	rn.opt, err = stubLauncher(gatedSimulator(release))(zap.NewNop(), cfg, optimizer.WithHooks(rn.hooks()))
	require.NoError(t, err)
	h.runs.add(rn)

	rn.stop()
	assert.Equal(t, optimizer.StateIdle, rn.opt.State())

	h.runs.start(zap.NewNop(), rn)
	select {
	case <-rn.done:
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled run never finished")
	}

	view := rn.view()
	assert.Equal(t, string(optimizer.StateCancelled), view.State)
	assert.Nil(t, view.Best)
	require.NotNil(t, view.Summary)
	assert.Zero(t, view.Summary.Evaluations)
}

func TestAirframeConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(gatedSimulator(release))})

	id := createRun(t, srv, runConfig)
	waitForState(t, srv, id, optimizer.StateRunning)

	resp, err := http.Get(srv.URL + "/api/runs/" + id + "/airframe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})

	first := createRun(t, srv, runConfig)
	second := createRun(t, srv, runConfig)
	waitForState(t, srv, first, optimizer.StateCompleted)
	waitForState(t, srv, second, optimizer.StateCompleted)

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var views []runView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 2)
	ids := []string{views[0].ID, views[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
}

func TestRunEvents(t *testing.T) {
	release := make(chan struct{})
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(gatedSimulator(release))})

	id := createRun(t, srv, runConfig)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(release)

	seen := map[string]int{}
	var done Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Type]++
		if ev.Type == EventDone {
			done = ev
			break
		}
	}

	require.NotNil(t, done.Run)
	assert.Equal(t, id, done.Run.ID)
	assert.Equal(t, string(optimizer.StateCompleted), done.Run.State)
	assert.Positive(t, seen[EventLog])
	assert.Positive(t, seen[EventStatus])
	assert.Positive(t, seen[EventProgress])
}

func TestRunEventsAfterFinish(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})

	id := createRun(t, srv, runConfig)
	waitForState(t, srv, id, optimizer.StateCompleted)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventDone, ev.Type)
}

func TestShutdownCancelsRuns(t *testing.T) {
	release := make(chan struct{})
	h, srv := newTestServer(t, Options{Launcher: stubLauncher(gatedSimulator(release))})

	id := createRun(t, srv, runConfig)
	waitForState(t, srv, id, optimizer.StateRunning)

	h.Shutdown()

	rn, ok := h.runs.get(id)
	require.True(t, ok)
	assert.Equal(t, optimizer.StateCancelled, rn.opt.State())
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, Options{Launcher: stubLauncher(inTarget)})
	id := createRun(t, srv, runConfig)
	waitForState(t, srv, id, optimizer.StateCompleted)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "airframe_optimizer_scoring_evaluations_total")
	assert.Contains(t, string(data), "airframe_optimizer_runs_finished_total")
}

func TestReferenceLauncher(t *testing.T) {
	_, srv := newTestServer(t, Options{DataDir: "../../test"})

	body := `airframe:
  path: test_airframe.yaml
targets:
  altitude: {min: 200, max: 250}
  stability: {min: 0.5, max: 5}
enabled:
  thickness: false
  rootChord: false
  finCount: false
  noseLength: false
  noseWallThickness: false
  durationScore: false
  stage1Parachute: false
  stage2Parachute: false
`
	id := createRun(t, srv, body)
	view := waitForState(t, srv, id, optimizer.StateCompleted)
	assert.Empty(t, view.Error)
}

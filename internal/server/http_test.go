package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	short, err := logs.NewMemoryWriter(100, 10, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	long, err := logs.NewMemoryWriter(1000, 10, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	if err = metrics.Register(reg); err != nil {
		t.Fatal(err)
	}
	session := func() types.SessionStatus {
		return types.SessionStatus{
			Active: true,
			Device: types.DeviceInfo{Serial: "LS0001", Bus: 1, Address: 7},
			Caps:   types.Capabilities{MaxILDARate: 30000, DACMax: 4095, FWMajor: 2, FWMinor: 5},
			Lines:  42,
		}
	}
	devices := func() ([]types.DeviceInfo, error) {
		return []types.DeviceInfo{{Serial: "LS0001"}}, nil
	}
	return New(Options{
		Version:  "1.0.0",
		Session:  session,
		Devices:  devices,
		Registry: reg,
	}, io.Discard, short, long)
}

func get(t *testing.T, s *Server, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusPage(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/status/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Lasershark status", "LS0001", "30000 pps", "2.5", "42 lines, 0 samples dropped"} {
		if !strings.Contains(body, want) {
			t.Errorf("page lacks %q", want)
		}
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("frame options not set")
	}
}

func TestStatusRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/status/", http.Header{"Origin": {"https://example.com"}})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status %d", rec.Code)
	}
}

func TestLogDownloadNeedsToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/status/log.gz", nil)
	req.Header.Set("Origin", "http://"+DefaultAddr)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status %d", rec.Code)
	}
}

func TestRedirect(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/", nil)
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "http://"+DefaultAddr+"/status/" {
		t.Errorf("status %d location %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAPI(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/api/session", nil)
	var st types.SessionStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Active || st.Lines != 42 || st.Caps.DACMax != 4095 {
		t.Errorf("session %+v", st)
	}

	rec = get(t, s, "/api/devices", nil)
	var devs []types.DeviceInfo
	if err := json.NewDecoder(rec.Body).Decode(&devs); err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1 || devs[0].Serial != "LS0001" {
		t.Errorf("devices %+v", devs)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	metrics.LineErrors.Inc()
	rec := get(t, s, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lasershark_line_errors_total") {
		t.Errorf("status %d", rec.Code)
	}
}

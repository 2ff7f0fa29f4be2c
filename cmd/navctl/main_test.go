package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRouteStatsFromArgs(t *testing.T) {
	out, err := execute(t, "route", "stats", "0,0", "0,1", "0,2")
	if err != nil {
		t.Fatalf("route stats: %v", err)
	}
	if !strings.Contains(out, "leg 2:") || !strings.Contains(out, "total: 120.08 nm over 2 legs") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRouteStatsSinglePoint(t *testing.T) {
	out, err := execute(t, "route", "stats", "10,10")
	if err != nil {
		t.Fatalf("route stats: %v", err)
	}
	if strings.TrimSpace(out) != "total: 0.00 nm over 0 legs" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRouteStatsRejectsBadPoints(t *testing.T) {
	if _, err := execute(t, "route", "stats", "0;0"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := execute(t, "route", "stats", "0,0", "95,0"); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestRouteStatsFromBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/routes/r1":
			_, _ = io.WriteString(w, `{"id":"r1","name":"Bay","waypoint_ids":["a","x","b"],"created_at":"2024-06-01T12:00:00"}`)
		case "/api/waypoints":
			_, _ = io.WriteString(w, `[{"id":"a","name":"A","lat":0,"lon":0,"created_at":"2024-06-01T12:00:00"},{"id":"b","name":"B","lat":0,"lon":1,"created_at":"2024-06-01T12:00:00"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := execute(t, "route", "stats", "--route", "r1", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("route stats: %v", err)
	}
	if !strings.Contains(out, "route Bay (r1)") || !strings.Contains(out, "skipped unknown waypoint x") || !strings.Contains(out, "over 1 legs") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "route", "stats", "--route", "nope", "--backend", srv.URL); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestTilesPlan(t *testing.T) {
	out, err := execute(t, "tiles", "plan", "--north", "1", "--south", "0", "--east", "1", "--west", "0", "--min-zoom", "5", "--max-zoom", "5")
	if err != nil {
		t.Fatalf("tiles plan: %v", err)
	}
	if !strings.Contains(out, "z5 x 16..16 y 15..16  2 tiles") || !strings.Contains(out, "total: 2 tiles") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	_, err = execute(t, "tiles", "plan", "--north", "1", "--south", "0", "--east", "1", "--west", "0", "--min-zoom", "8", "--max-zoom", "6")
	if err == nil {
		t.Fatalf("expected zoom error")
	}
}

func TestTilesFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/15.png") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "png:"+r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, err := execute(t, "tiles", "fetch", "--north", "1", "--south", "0", "--east", "1", "--west", "0",
		"--min-zoom", "5", "--max-zoom", "5", "--server", srv.URL, "--out", dir, "--workers", "1")
	if err != nil {
		t.Fatalf("tiles fetch: %v", err)
	}
	if !strings.Contains(out, "failed 5/16/15") || !strings.Contains(out, "stored 1 of 2 tiles") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tiles", "5", "16", "16.png"))
	if err != nil || string(data) != "png:/5/16/16.png" {
		t.Fatalf("expected stored tile, got %q: %v", data, err)
	}
}

func TestTilesLocate(t *testing.T) {
	out, err := execute(t, "tiles", "locate", "37.8,-122.4", "--zoom", "10")
	if err != nil {
		t.Fatalf("tiles locate: %v", err)
	}
	if strings.TrimSpace(out) != "10/163/395" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/routes":
			_, _ = io.WriteString(w, `[{"id":"r1","name":"Bay","waypoint_ids":["a","b"],"created_at":"2024-06-01T12:00:00"}]`)
		case "/api/routes/r1":
			_, _ = io.WriteString(w, `{"id":"r1","name":"Bay","waypoint_ids":["a","b"],"created_at":"2024-06-01T12:00:00"}`)
		case "/api/waypoints":
			_, _ = io.WriteString(w, `[{"id":"a","name":"A","lat":0,"lon":0,"created_at":"2024-06-01T12:00:00"},{"id":"b","name":"B","lat":0,"lon":1,"created_at":"2024-06-01T12:00:00"}]`)
		case "/api/tides/stations":
			if r.URL.Query().Get("state") != "CA" {
				t.Errorf("expected state filter, got %q", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `[{"id":"9414290","name":"San Francisco","state":"CA"}]`)
		case "/api/tides/stations/9414290/predictions":
			_, _ = io.WriteString(w, `{"station_id":"9414290","date":"2024-06-01","predictions":[{"time":"2024-06-01T04:12:00","height_ft":5.1,"type":"H"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouteList(t *testing.T) {
	srv := fakeBackend(t)
	out, err := execute(t, "route", "list", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("route list: %v", err)
	}
	if !strings.Contains(out, "r1\tBay\t2 waypoints\t60.04 nm") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestTides(t *testing.T) {
	srv := fakeBackend(t)

	out, err := execute(t, "tides", "stations", "--state", "CA", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("tides stations: %v", err)
	}
	if strings.TrimSpace(out) != "9414290\tSan Francisco\tCA" {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execute(t, "tides", "predictions", "9414290", "--date", "2024-06-01", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("tides predictions: %v", err)
	}
	if !strings.Contains(out, "station 9414290 on 2024-06-01") || !strings.Contains(out, "04:12  H    5.10 ft") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "tides", "predictions", "9414290", "--date", "June 1st", "--backend", srv.URL); err == nil {
		t.Fatalf("expected date parse error")
	}
}

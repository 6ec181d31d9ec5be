// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"relaytune/pkg/autotune"
	"relaytune/pkg/log"
	"relaytune/pkg/reactor"
	"relaytune/pkg/relay"
	"relaytune/pkg/sample"
)

type fixedSource struct{ value float64 }

func (f *fixedSource) Latest() (float64, time.Time, bool) {
	return f.value, time.Now(), true
}

type nullActuator struct{}

func (nullActuator) SetValue(float64) error { return nil }

func newTestServer(t *testing.T) (*Server, *autotune.Manager) {
	t.Helper()
	lg := log.New("test")
	lg.SetWriter(io.Discard)
	mgr := autotune.NewManager(reactor.New(), lg)

	driver, err := relay.NewDriver(relay.Config{
		Kind: relay.Continuous, Base: 50, Step: 10, Min: 0, Max: 100,
	}, nullActuator{}, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	sess, err := autotune.NewSession("tank-1", "fermenter", autotune.Params{
		Setpoint:   7,
		NoiseBand:  0.5,
		Period:     time.Second,
		OutputStep: 10,
		Lookback:   30 * time.Second,
	}, sample.NewSampler(&fixedSource{value: 7}, 0), driver, nil, lg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := mgr.Add(sess); err != nil {
		t.Fatalf("Add: %v", err)
	}

	return New(Config{
		Manager:           mgr,
		Logger:            lg,
		AccessLog:         io.Discard,
		BroadcastInterval: 20 * time.Millisecond,
	}), mgr
}

func getJSON(t *testing.T, ts *httptest.Server, path string, want int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("GET %s = %d, want %d", path, resp.StatusCode, want)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func postJSON(t *testing.T, ts *httptest.Server, path string, want int) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("POST %s = %d, want %d", path, resp.StatusCode, want)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := getJSON(t, ts, "/healthz", http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestListSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := getJSON(t, ts, "/api/v1/sessions", http.StatusOK)
	sessions, ok := body["sessions"].([]interface{})
	if !ok || len(sessions) != 1 {
		t.Fatalf("sessions = %v", body["sessions"])
	}
	first := sessions[0].(map[string]interface{})
	if first["id"] != "tank-1" || first["state"] != "off" {
		t.Fatalf("session = %v", first)
	}
	if first["state_code"].(float64) != 0 {
		t.Fatalf("state_code = %v", first["state_code"])
	}
}

func TestGetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := getJSON(t, ts, "/api/v1/sessions/tank-1", http.StatusOK)
	if body["name"] != "fermenter" {
		t.Fatalf("body = %v", body)
	}
	getJSON(t, ts, "/api/v1/sessions/ghost", http.StatusNotFound)
}

func TestActivateAndDeactivate(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := postJSON(t, ts, "/api/v1/sessions/tank-1/activate", http.StatusOK)
	if body["state"] != "step_up" {
		t.Fatalf("state after activate = %v", body["state"])
	}
	postJSON(t, ts, "/api/v1/sessions/tank-1/activate", http.StatusConflict)
	postJSON(t, ts, "/api/v1/sessions/ghost/activate", http.StatusNotFound)

	body = postJSON(t, ts, "/api/v1/sessions/tank-1/deactivate", http.StatusOK)
	if body["state"] != "failed" || body["reason"] != "cancelled" {
		t.Fatalf("state after deactivate = %v / %v", body["state"], body["reason"])
	}
}

func TestResultNotAvailable(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	getJSON(t, ts, "/api/v1/sessions/tank-1/result", http.StatusNotFound)
}

func TestRulesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := getJSON(t, ts, "/api/v1/rules", http.StatusOK)
	list, ok := body["rules"].([]interface{})
	if !ok || len(list) != 7 {
		t.Fatalf("rules = %v", body["rules"])
	}
	found := false
	for _, r := range list {
		if r == "ziegler-nichols" {
			found = true
		}
	}
	if !found {
		t.Fatal("ziegler-nichols missing from rules list")
	}
}

func TestWebsocketSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type     string `json:"type"`
		Sessions []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"sessions"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Type != "status" || len(frame.Sessions) != 1 {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Sessions[0].ID != "tank-1" {
		t.Fatalf("session id = %q", frame.Sessions[0].ID)
	}
}

package observer

import (
	"encoding/json"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
)

func newServer(t *testing.T) (*Server, *regen.Controller) {
	t.Helper()
	mg := tuning.DefaultMapGen()
	mg.GridSize = 5
	c, err := regen.New(regen.Config{MapID: "map_obs", MapGen: mg}, nil)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	c.Trigger()
	if _, err := c.StepOnce(); err != nil {
		t.Fatalf("step: %v", err)
	}
	return NewServer(c, log.New(io.Discard, "", 0)), c
}

func get(h http.HandlerFunc, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBootstrap_LoopbackOnly(t *testing.T) {
	s, c := newServer(t)
	if rec := get(s.BootstrapHandler(), "/admin/v1/observer/bootstrap", "203.0.113.9:4000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}
	rec := get(s.BootstrapHandler(), "/admin/v1/observer/bootstrap", "127.0.0.1:4000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp protocol.BootstrapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MapID != "map_obs" || resp.Generation != 1 || resp.Cells != 25 || resp.Digest != c.Current().Digest {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.State != "IDLE" || resp.Triangles == 0 {
		t.Fatalf("state=%s triangles=%d", resp.State, resp.Triangles)
	}
	total := 0
	for _, n := range resp.Histogram {
		total += n
	}
	if total != 25 {
		t.Fatalf("histogram total=%d", total)
	}
}

func TestMapSVG(t *testing.T) {
	s, _ := newServer(t)
	rec := get(s.MapSVGHandler(), "/admin/v1/observer/map.svg?width=300&triangles=1", "[::1]:4000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("content-type=%s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `width="300"`) || !strings.Contains(body, "<line") {
		t.Fatalf("unexpected svg: %.200s", body)
	}

	if rec := get(s.MapSVGHandler(), "/admin/v1/observer/map.svg?width=-4", "127.0.0.1:1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad width status=%d", rec.Code)
	}
}

func TestMapPNG(t *testing.T) {
	s, _ := newServer(t)
	rec := get(s.MapPNGHandler(), "/admin/v1/observer/map.png?width=64&height=48", "127.0.0.1:1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("bounds=%v", b)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for in, want := range cases {
		if got := IsLoopbackRemote(in); got != want {
			t.Fatalf("%s: got %v want %v", in, got, want)
		}
	}
}

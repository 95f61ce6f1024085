package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelfluid/internal/observerproto"
	"voxelfluid/internal/protocol"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
	"voxelfluid/internal/sim/voxel"
)

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find repo root from %s", dir)
		}
		dir = parent
	}
}

func startServer(t *testing.T) (*httptest.Server, *area.Area) {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join(findRepoRoot(t), "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	grid, err := voxel.New(voxel.Vec3i{X: 4, Y: 2, Z: 1}, 100, cats.Fluids.Types())
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	a, err := area.New(area.Config{ID: "test_area", TickRateHz: 50, Validate: true}, grid, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Run(ctx) }()

	srv := NewServer(a, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", srv.WSHandler())
	mux.HandleFunc("/metrics", srv.MetricsHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, a
}

func TestBootstrap(t *testing.T) {
	ts, _ := startServer(t)
	resp, err := http.Get(ts.URL + "/admin/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.AreaID != "test_area" || b.AreaParams.Size != [3]int{4, 2, 1} || b.AreaParams.Capacity != 100 {
		t.Fatalf("unexpected bootstrap: %+v", b)
	}
	if len(b.FluidPalette) == 0 || b.FluidPalette[0] != "WATER" {
		t.Fatalf("palette: %v", b.FluidPalette)
	}

	resp2, err := http.Post(ts.URL+"/admin/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status: %d", resp2.StatusCode)
	}
}

func TestWS_SubscribeAndEdit(t *testing.T) {
	ts, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Groups:          true,
		SliceY:          0,
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	send := func(id, op, fluid string, pos [3]int, v uint32) {
		t.Helper()
		err := conn.WriteJSON(protocol.EditMsg{
			Type: protocol.TypeEdit, ProtocolVersion: protocol.Version,
			ID: id, Op: op, Pos: pos, Fluid: fluid, Volume: v,
		})
		if err != nil {
			t.Fatalf("edit %s: %v", id, err)
		}
	}
	send("add", protocol.OpAddFluid, "WATER", [3]int{0, 0, 0}, 100)
	send("fluid", protocol.OpAddFluid, "MERCURY", [3]int{0, 0, 0}, 10)
	send("oob", protocol.OpAddFluid, "WATER", [3]int{9, 0, 0}, 10)

	results := map[string]protocol.EditResultMsg{}
	var sawTick, sawSlice, sawGroups bool
	deadline := time.Now().Add(5 * time.Second)
	for len(results) < 3 || !sawTick || !sawSlice || !sawGroups {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: results=%v tick=%v slice=%v groups=%v", results, sawTick, sawSlice, sawGroups)
		}
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeEditResult:
			var r protocol.EditResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				t.Fatalf("result: %v", err)
			}
			results[r.ID] = r
		case observerproto.TypeTick:
			var tm observerproto.TickMsg
			if err := json.Unmarshal(msg, &tm); err != nil {
				t.Fatalf("tick: %v", err)
			}
			sawTick = true
			if len(tm.GroupSummaries) > 0 {
				sawGroups = true
			}
		case observerproto.TypeSlice:
			var sm observerproto.SliceMsg
			if err := json.Unmarshal(msg, &sm); err != nil {
				t.Fatalf("slice: %v", err)
			}
			if sm.Y != 0 || sm.Encoding != "RLE_U32" {
				t.Fatalf("unexpected slice: %+v", sm)
			}
			sawSlice = true
		}
	}

	if r := results["add"]; !r.OK || r.Moved != 100 || r.Tick == 0 {
		t.Fatalf("add: %+v", r)
	}
	if r := results["fluid"]; r.OK || r.Code != protocol.ErrUnknownFluid {
		t.Fatalf("unknown fluid: %+v", r)
	}
	if r := results["oob"]; r.OK || r.Code != protocol.ErrInvalidTarget {
		t.Fatalf("out of bounds: %+v", r)
	}
}

func TestWS_RejectsMissingSubscribe(t *testing.T) {
	ts, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(protocol.BaseMessage{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{area.ErrBusy, protocol.ErrAreaBusy},
		{area.ErrStopped, protocol.ErrAreaStopped},
		{fmt.Errorf("%w: (1,2,3)", area.ErrOutOfBounds), protocol.ErrInvalidTarget},
		{area.ErrUnknownFluid, protocol.ErrUnknownFluid},
		{area.ErrFrozen, protocol.ErrBlocked},
		{area.ErrBlocked, protocol.ErrBlocked},
		{area.ErrBadVolume, protocol.ErrBadRequest},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Fatalf("errorCode(%v)=%s want %s", tc.err, got, tc.code)
		}
		if !protocol.IsKnownCode(tc.code) {
			t.Fatalf("unknown code %s", tc.code)
		}
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{SliceY: 7, SliceEvery: 0}
	normalizeSubscribe(&sub, 4)
	if sub.SliceY != -1 || sub.SliceEvery != 1 {
		t.Fatalf("got %+v", sub)
	}
	sub = observerproto.SubscribeMsg{SliceY: 2, SliceEvery: 5000}
	normalizeSubscribe(&sub, 4)
	if sub.SliceY != 2 || sub.SliceEvery != 1000 {
		t.Fatalf("got %+v", sub)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

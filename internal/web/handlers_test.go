package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/ServoGo/internal/logic/control"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
)

type fakeController struct {
	mu     sync.Mutex
	snap   control.Snapshot
	events []control.Event
}

func (f *fakeController) Submit(e control.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeController) Published() control.Snapshot { return f.snap }

func (f *fakeController) submitted() []control.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]control.Event(nil), f.events...)
}

// testSnapshot is arm=[a b], empty=[]
func testSnapshot() control.Snapshot {
	return control.Snapshot{
		Tick: 7,
		Groups: []control.GroupView{
			{ID: "g-arm", Name: "arm", Members: []control.ActuatorView{{ID: "id-a", Key: "a"}, {ID: "id-b", Key: "b"}}},
			{ID: "g-empty", Name: "empty"},
		},
	}
}

func newTestHandlers() (*Handlers, *fakeController) {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	ctrl := &fakeController{snap: testSnapshot()}
	return NewHandlers(NewStatusBroadcaster(), ctrl, staticFS), ctrl
}

func post(h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// ---------- ValidateCommand ----------

func TestValidateCommand_Valid(t *testing.T) {
	cases := []struct {
		name string
		req  CommandRequest
	}{
		{"group_move", CommandRequest{Command: "move+", Group: "arm"}},
		{"actuator_move_to", CommandRequest{Command: "move-to", Actuator: "b", Value: -3.5}},
		{"edit", CommandRequest{Command: "edit", Actuator: "a", Field: "max_limit", Text: "40"}},
		{"stop_all_without_target", CommandRequest{Command: "stop-all"}},
		{"add_group_without_target", CommandRequest{Command: "add-group", Text: "legs"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := ValidateCommand(tc.req, testSnapshot())
			if err != nil {
				t.Fatalf("expected valid, got: %v", err)
			}
			if string(cmd.Op) != tc.req.Command {
				t.Errorf("op = %q, want %q", cmd.Op, tc.req.Command)
			}
		})
	}
}

func TestValidateCommand_Rejected(t *testing.T) {
	cases := []struct {
		name string
		req  CommandRequest
	}{
		{"unknown_command", CommandRequest{Command: "spin", Group: "arm"}},
		{"empty_command", CommandRequest{Group: "arm"}},
		{"unknown_group", CommandRequest{Command: "move+", Group: "ghost"}},
		{"unknown_actuator", CommandRequest{Command: "lock", Actuator: "z"}},
		{"no_target", CommandRequest{Command: "center"}},
		{"NaN_value", CommandRequest{Command: "move-to", Actuator: "a", Value: math.NaN()}},
		{"Inf_value", CommandRequest{Command: "move-to", Actuator: "a", Value: math.Inf(1)}},
		{"negative_speed", CommandRequest{Command: "move-to", Actuator: "a", Speed: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateCommand(tc.req, testSnapshot()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- ValidateReorder ----------

func TestValidateReorder(t *testing.T) {
	cases := []struct {
		name    string
		req     ReorderRequest
		want    reorder.Drop
		wantErr bool
	}{
		{
			name: "group",
			req:  ReorderRequest{Kind: "group", From: 1, To: 0, Upper: true},
			want: reorder.Drop{Kind: reorder.KindGroup, FromGroup: 1, From: 1, ToGroup: 0, Over: 0, Upper: true, Item: "g-empty"},
		},
		{
			name: "actuator_same_group",
			req:  ReorderRequest{Kind: "actuator", FromGroup: 0, From: 0, ToGroup: 0, To: 1},
			want: reorder.Drop{Kind: reorder.KindActuator, FromGroup: 0, From: 0, ToGroup: 0, Over: 1, Item: "id-a", Dest: "g-arm"},
		},
		{
			name: "actuator_to_empty_group",
			req:  ReorderRequest{Kind: "actuator", FromGroup: 0, From: 1, ToGroup: 1, To: 5},
			want: reorder.Drop{Kind: reorder.KindActuator, FromGroup: 0, From: 1, ToGroup: 1, Empty: true, Item: "id-b", Dest: "g-empty"},
		},
		{name: "bad_kind", req: ReorderRequest{Kind: "row"}, wantErr: true},
		{name: "group_out_of_range", req: ReorderRequest{Kind: "group", From: 0, To: 2}, wantErr: true},
		{name: "source_out_of_range", req: ReorderRequest{Kind: "actuator", FromGroup: 0, From: 2, ToGroup: 0}, wantErr: true},
		{name: "source_group_empty", req: ReorderRequest{Kind: "actuator", FromGroup: 1, From: 0, ToGroup: 0}, wantErr: true},
		{name: "target_out_of_range", req: ReorderRequest{Kind: "actuator", FromGroup: 0, From: 0, ToGroup: 0, To: -1}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateReorder(tc.req, testSnapshot())
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("drop = %+v, want %+v", got, tc.want)
			}
		})
	}
}

// ---------- HandleCommand ----------

func TestHandleCommand_ValidPost(t *testing.T) {
	h, ctrl := newTestHandlers()
	w := post(h.HandleCommand, "/command", CommandRequest{Command: "move-", Group: "arm"})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "queued" {
		t.Errorf("response status = %q, want \"queued\"", resp["status"])
	}

	events := ctrl.submitted()
	if len(events) != 1 {
		t.Fatalf("submitted %d events, want 1", len(events))
	}
	cmd, ok := events[0].(control.Command)
	if !ok {
		t.Fatalf("submitted %T, want control.Command", events[0])
	}
	if cmd.Op != control.OpMoveNegative || cmd.Group != "arm" {
		t.Errorf("command = %+v", cmd)
	}
}

func TestHandleCommand_GetMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/command", nil)
	w := httptest.NewRecorder()

	h.HandleCommand(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCommand_InvalidJSON(t *testing.T) {
	h, ctrl := newTestHandlers()
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.HandleCommand(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if n := len(ctrl.submitted()); n != 0 {
		t.Errorf("submitted %d events, want 0", n)
	}
}

func TestHandleCommand_UnknownTarget(t *testing.T) {
	h, ctrl := newTestHandlers()
	w := post(h.HandleCommand, "/command", CommandRequest{Command: "center", Group: "ghost"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if n := len(ctrl.submitted()); n != 0 {
		t.Errorf("submitted %d events, want 0", n)
	}
}

func TestHandleCommand_OversizedBody(t *testing.T) {
	h, _ := newTestHandlers()
	big := `{"command":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(big))
	w := httptest.NewRecorder()

	h.HandleCommand(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

// ---------- HandleReorder ----------

func TestHandleReorder_Queued(t *testing.T) {
	h, ctrl := newTestHandlers()
	w := post(h.HandleReorder, "/reorder", ReorderRequest{Kind: "actuator", FromGroup: 0, From: 0, ToGroup: 1})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	events := ctrl.submitted()
	if len(events) != 1 {
		t.Fatalf("submitted %d events, want 1", len(events))
	}
	ev, ok := events[0].(control.Reorder)
	if !ok {
		t.Fatalf("submitted %T, want control.Reorder", events[0])
	}
	if !ev.Drop.Empty || ev.Drop.ToGroup != 1 {
		t.Errorf("drop = %+v", ev.Drop)
	}
	if ev.Drop.Item != "id-a" || ev.Drop.Dest != "g-empty" {
		t.Errorf("drop identity = %q -> %q, want id-a -> g-empty", ev.Drop.Item, ev.Drop.Dest)
	}
}

func TestHandleReorder_BadRequest(t *testing.T) {
	h, _ := newTestHandlers()
	w := post(h.HandleReorder, "/reorder", ReorderRequest{Kind: "group", From: 0, To: 9})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ---------- HandleState ----------

func TestHandleState(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	w := httptest.NewRecorder()

	h.HandleState(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap control.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Tick != 7 || len(snap.Groups) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Groups[0].Members[1].Key != "b" {
		t.Errorf("second member = %q, want b", snap.Groups[0].Members[1].Key)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

// ---------- Server ----------

func TestServerRoutes(t *testing.T) {
	ctrl := &fakeController{snap: testSnapshot()}
	srv, err := NewServer(":0", NewStatusBroadcaster(), ctrl)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /state = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/command", "application/json", strings.NewReader(`{"command":"stop-all"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /command = %d, want 202", resp.StatusCode)
	}
	if n := len(ctrl.submitted()); n != 1 {
		t.Errorf("submitted %d events, want 1", n)
	}
}

func TestServerRun_StopsOnCancel(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", NewStatusBroadcaster(), &fakeController{snap: testSnapshot()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServerRun_ReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv, err := NewServer(ln.Addr().String(), NewStatusBroadcaster(), &fakeController{snap: testSnapshot()})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-runAsync(srv):
		if err == nil {
			t.Error("Run on a busy address returned nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not fail on a busy address")
	}
}

func runAsync(srv *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()
	return done
}

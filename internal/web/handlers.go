package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/control"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Controller is the part of control.Controller the handlers use. Submit
// is safe from any goroutine; Published returns the last tick's view.
type Controller interface {
	Submit(e control.Event)
	Published() control.Snapshot
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Group     string  `json:"group"`
	Actuator  string  `json:"actuator"`
	Command   string  `json:"command"`
	Value     float64 `json:"value"`
	Speed     float64 `json:"speed"`
	Index     int     `json:"index"`
	Field     string  `json:"field"`
	Text      string  `json:"text"`
	Symmetric bool    `json:"symmetric"`
}

// ReorderRequest is the body of POST /reorder. To is the index of the row
// the item is dropped on; Upper selects its upper half.
type ReorderRequest struct {
	Kind      string `json:"kind"`
	FromGroup int    `json:"from_group"`
	From      int    `json:"from"`
	ToGroup   int    `json:"to_group"`
	To        int    `json:"to"`
	Upper     bool   `json:"upper"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Controller  Controller
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl Controller, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Controller:  ctrl,
		staticFS:    staticFS,
	}
}

// ValidateCommand checks a command request against the published state.
func ValidateCommand(req CommandRequest, snap control.Snapshot) (control.Command, error) {
	op := control.Op(req.Command)
	if !control.Known(op) {
		return control.Command{}, fmt.Errorf("unknown command %q", req.Command)
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return control.Command{}, errors.New("value must be a finite number")
	}
	if math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) || req.Speed < 0 {
		return control.Command{}, errors.New("speed must be a finite non-negative number")
	}

	cmd := control.Command{
		Op:        op,
		Group:     req.Group,
		Actuator:  req.Actuator,
		Value:     req.Value,
		Speed:     req.Speed,
		Index:     req.Index,
		Field:     servo.Field(req.Field),
		Text:      req.Text,
		Symmetric: req.Symmetric,
	}

	switch op {
	case control.OpStopAll, control.OpAddGroup:
		return cmd, nil
	}
	switch {
	case req.Actuator != "":
		if !hasActuator(snap, req.Actuator) {
			return control.Command{}, fmt.Errorf("unknown actuator %q", req.Actuator)
		}
	case req.Group != "":
		if !hasGroup(snap, req.Group) {
			return control.Command{}, fmt.Errorf("unknown group %q", req.Group)
		}
	default:
		return control.Command{}, errors.New("group or actuator is required")
	}
	return cmd, nil
}

// ValidateReorder turns a reorder request into a drop on the published
// layout.
func ValidateReorder(req ReorderRequest, snap control.Snapshot) (reorder.Drop, error) {
	groups := len(snap.Groups)
	switch req.Kind {
	case "group":
		if req.From < 0 || req.From >= groups || req.To < 0 || req.To >= groups {
			return reorder.Drop{}, fmt.Errorf("group index out of range [0,%d)", groups)
		}
		return reorder.Drop{
			Kind:      reorder.KindGroup,
			FromGroup: req.From,
			From:      req.From,
			ToGroup:   req.To,
			Over:      req.To,
			Upper:     req.Upper,
			Item:      snap.Groups[req.From].ID,
		}, nil
	case "actuator":
		if req.FromGroup < 0 || req.FromGroup >= groups || req.ToGroup < 0 || req.ToGroup >= groups {
			return reorder.Drop{}, fmt.Errorf("group index out of range [0,%d)", groups)
		}
		src := len(snap.Groups[req.FromGroup].Members)
		if req.From < 0 || req.From >= src {
			return reorder.Drop{}, fmt.Errorf("actuator index %d out of range [0,%d)", req.From, src)
		}
		d := reorder.Drop{
			Kind:      reorder.KindActuator,
			FromGroup: req.FromGroup,
			From:      req.From,
			ToGroup:   req.ToGroup,
			Item:      snap.Groups[req.FromGroup].Members[req.From].ID,
			Dest:      snap.Groups[req.ToGroup].ID,
		}
		dst := len(snap.Groups[req.ToGroup].Members)
		if dst == 0 {
			d.Empty = true
			return d, nil
		}
		if req.To < 0 || req.To >= dst {
			return reorder.Drop{}, fmt.Errorf("target index %d out of range [0,%d)", req.To, dst)
		}
		d.Over, d.Upper = req.To, req.Upper
		return d, nil
	default:
		return reorder.Drop{}, fmt.Errorf("kind must be \"group\" or \"actuator\", got %q", req.Kind)
	}
}

func hasGroup(snap control.Snapshot, name string) bool {
	for _, g := range snap.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

func hasActuator(snap control.Snapshot, key string) bool {
	for _, g := range snap.Groups {
		for _, m := range g.Members {
			if m.Key == key {
				return true
			}
		}
	}
	return false
}

// HandleState returns the last published snapshot as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Controller.Published())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command. Accepted commands run on the next
// tick.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	cmd, err := ValidateCommand(req, h.Controller.Published())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	debug.Verbose("web: command %s group=%q actuator=%q", cmd.Op, cmd.Group, cmd.Actuator)
	h.Controller.Submit(cmd)
	writeQueued(w)
}

// HandleReorder handles POST /reorder.
func (h *Handlers) HandleReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReorderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	drop, err := ValidateReorder(req, h.Controller.Published())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Controller.Submit(control.Reorder{Drop: drop})
	writeQueued(w)
}

func writeQueued(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()
	debug.Verbose("web: status stream opened, %d client(s)", h.Broadcaster.Subscribers())

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

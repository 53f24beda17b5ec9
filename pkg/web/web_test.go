package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/metrics"
	"github.com/teslashibe/go-moodpet/pkg/pet"
	"github.com/teslashibe/go-moodpet/pkg/stream"
)

func init() {
	log.Discard()
}

// fakeStream mimics the session lifecycle without a camera.
type fakeStream struct {
	mu      sync.Mutex
	state   stream.State
	starts  int
	stops   int
	startFn func() error
}

func (f *fakeStream) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startFn != nil {
		if err := f.startFn(); err != nil {
			return err
		}
	}
	if f.state != stream.Stopped {
		return stream.ErrAlreadyRunning
	}
	f.starts++
	f.state = stream.Running
	return nil
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = stream.Stopped
}

func (f *fakeStream) State() stream.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) Stats() stream.Stats {
	return stream.Stats{State: f.State().String(), Frames: 42}
}

func newTestServer(t *testing.T) (*Server, *blackboard.Board, *fakeStream) {
	t.Helper()
	board := blackboard.New(blackboard.DefaultValues())
	fs := &fakeStream{}
	srv := NewServer(Options{
		Port:    "0",
		Board:   board,
		Stream:  fs,
		Camera:  camera.NewManager(camera.DefaultConfig()),
		Metrics: metrics.New(),
	})
	return srv, board, fs
}

func do(t *testing.T, srv *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestGetState(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, srv, "GET", "/api/state", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap blackboard.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.PetType != "westie" || snap.Mode != blackboard.ModeFace || snap.Scale != 1.1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.X != 400 || snap.Y != 1000 || snap.Running {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestPatchState(t *testing.T) {
	srv, board, _ := newTestServer(t)

	resp, body := do(t, srv, "PATCH", "/api/state", `{"pet_type":"panda","scale":0.8,"x":120,"mode":"dog"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	if board.PetType() != "panda" || board.Scale() != 0.8 || board.X() != 120 || board.Mode() != blackboard.ModeDog {
		t.Errorf("board = %+v", board.Snapshot())
	}
	if board.Y() != 1000 {
		t.Errorf("untouched y changed to %d", board.Y())
	}
}

func TestPatchStateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown pet", `{"pet_type":"dragon"}`},
		{"scale too small", `{"scale":0.1}`},
		{"scale too large", `{"scale":2.5}`},
		{"negative x", `{"x":-1}`},
		{"y out of range", `{"y":5000}`},
		{"bad mode", `{"mode":"cat"}`},
		{"running is not writable", `{"running":true}`},
		{"unknown key", `{"colour":"red"}`},
		{"fractional x", `{"x":1.5}`},
		{"not json", `scale=1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, board, _ := newTestServer(t)
			before := board.Snapshot()

			resp, _ := do(t, srv, "PATCH", "/api/state", tt.body)
			if resp.StatusCode != 400 {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if after := board.Snapshot(); after != before {
				t.Errorf("board changed: %+v -> %+v", before, after)
			}
		})
	}
}

func TestPatchStateAllOrNothing(t *testing.T) {
	srv, board, _ := newTestServer(t)

	resp, body := do(t, srv, "PATCH", "/api/state", `{"x":10,"scale":9}`)
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if board.X() != 400 {
		t.Errorf("x applied despite invalid scale: %d", board.X())
	}

	var out struct {
		Errors []string `json:"errors"`
	}
	json.Unmarshal(body, &out)
	if len(out.Errors) != 1 || !strings.Contains(out.Errors[0], "scale") {
		t.Errorf("errors = %v", out.Errors)
	}
}

func TestStartStop(t *testing.T) {
	srv, _, fs := newTestServer(t)

	resp, _ := do(t, srv, "POST", "/api/pet/start", "")
	if resp.StatusCode != 202 {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	resp, _ = do(t, srv, "POST", "/api/pet/start", "")
	if resp.StatusCode != 409 {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	resp, body := do(t, srv, "POST", "/api/pet/stop", "")
	if resp.StatusCode != 200 {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "stopped") {
		t.Errorf("stop body = %s", body)
	}
	if fs.starts != 1 || fs.stops != 1 {
		t.Errorf("starts=%d stops=%d", fs.starts, fs.stops)
	}
}

func TestStartWithoutStream(t *testing.T) {
	srv := NewServer(Options{Port: "0"})

	resp, _ := do(t, srv, "POST", "/api/pet/start", "")
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestListPets(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := do(t, srv, "GET", "/api/pets", "")
	var pets []pet.Pet
	if err := json.Unmarshal(body, &pets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pets) != len(pet.Catalogue()) {
		t.Errorf("got %d pets", len(pets))
	}
}

func TestStreamStats(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := do(t, srv, "GET", "/api/stream", "")
	var st stream.Stats
	json.Unmarshal(body, &st)
	if st.Frames != 42 || st.State != "stopped" {
		t.Errorf("stats = %+v", st)
	}
}

func TestFrame(t *testing.T) {
	srv, board, _ := newTestServer(t)

	resp, _ := do(t, srv, "GET", "/api/frame.jpg", "")
	if resp.StatusCode != 404 {
		t.Errorf("empty slot status = %d, want 404", resp.StatusCode)
	}

	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}
	board.SetFrame(&blackboard.Frame{JPEG: jpeg, Width: 2, Height: 2, CapturedAt: time.Now()})

	resp, body := do(t, srv, "GET", "/api/frame.jpg", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	if string(body) != string(jpeg) {
		t.Errorf("body = %x", body)
	}
}

func TestCameraConfig(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, srv, "PATCH", "/api/camera", `{"preset":"480p","mirror":true}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}

	var cfg camera.Config
	json.Unmarshal(body, &cfg)
	if cfg.Width != 640 || cfg.Height != 480 || !cfg.Mirror {
		t.Errorf("config = %+v", cfg)
	}

	resp, _ = do(t, srv, "PATCH", "/api/camera", `{"zoom":2}`)
	if resp.StatusCode != 400 {
		t.Errorf("unknown param status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.opts.Metrics.Frame()

	resp, body := do(t, srv, "GET", "/metrics", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "moodpet_frames_total 1") {
		t.Errorf("metrics body missing frame counter:\n%s", body)
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := do(t, srv, "GET", "/ws/emotions", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestEmotionsWebSocket(t *testing.T) {
	board := blackboard.New(blackboard.DefaultValues())
	srv := NewServer(Options{Port: "18091", Board: board})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/ws/emotions", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for srv.EventHub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ev := stream.Event{SessionID: "s1", Seq: 1, Label: "Happy", Confidence: 0.9}
	if err := srv.EventHub().BroadcastJSON(ev); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("message type = %d", mt)
	}

	var got stream.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Label != "Happy" || got.Seq != 1 {
		t.Errorf("event = %+v", got)
	}
}

func TestCameraWebSocket(t *testing.T) {
	srv := NewServer(Options{Port: "18092"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/ws/camera", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for srv.CameraHub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	srv.CameraHub().BroadcastBinary([]byte{1, 2, 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage || len(data) != 3 {
		t.Errorf("got type %d len %d", mt, len(data))
	}
}

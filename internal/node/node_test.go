package node

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apistol78/traktor-sub009/internal/config"
	"github.com/apistol78/traktor-sub009/pkg/recorder"
	"github.com/apistol78/traktor-sub009/pkg/state"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

type memorySink struct {
	mu       sync.Mutex
	segments [][]byte
}

func (s *memorySink) Store(_ context.Context, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, data)
	return nil
}

func testConfig(name string) *config.Config {
	cfg := config.New()
	cfg.Name = name
	cfg.Listen = "127.0.0.1:0"
	cfg.Tick = "5ms"
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrbit(t *testing.T) {
	o := orbit{origin: vecmath.Point(1, 2, 3), radius: 5, speed: 0.5}

	tests := []struct {
		name string
		t    float64
		want vecmath.Vector4
	}{
		{"start", 0, vecmath.Point(6, 2, 3)},
		{"quarter", math.Pi, vecmath.Point(1, 2, 8)},
		{"full turn", 4 * math.Pi, vecmath.Point(6, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := o.at(tt.t)
			if err := DemoTemplate().Validate(s); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			body := s.Value(0).(state.BodyState)
			if d := vecmath.Distance3(body.Position, tt.want); d > 1e-4 {
				t.Errorf("Position = %v, want %v", body.Position, tt.want)
			}
			if speed := body.LinearVelocity.Length3(); math.Abs(float64(speed)-2.5) > 1e-4 {
				t.Errorf("speed = %v, want 2.5", speed)
			}
			heading := float64(s.Value(1).(state.Float))
			if heading < 0 || heading >= 2*math.Pi {
				t.Errorf("heading = %v outside [0, 2π)", heading)
			}
		})
	}
}

func TestHandlerRoutes(t *testing.T) {
	n, err := New(testConfig("solo"), Options{Logger: discard()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := n.step(0.01); err != nil {
		t.Fatalf("step() error = %v", err)
	}
	h := n.Handler()

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/peers", http.StatusOK, "[]"},
		{"/stats", http.StatusOK, `"name":"solo"`},
		{"/metrics", http.StatusOK, "replicator_update_duration_seconds"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewSink(t *testing.T) {
	if sink, err := NewSink(config.RecordingConfig{}); sink != nil || err != nil {
		t.Errorf("NewSink(empty) = %v, %v; want nil, nil", sink, err)
	}

	sink, err := NewSink(config.RecordingConfig{Dir: t.TempDir()})
	if _, ok := sink.(*recorder.FileSink); !ok || err != nil {
		t.Errorf("NewSink(dir) = %T, %v; want *recorder.FileSink", sink, err)
	}

	sink, err = NewSink(config.RecordingConfig{Bucket: "b", Dir: t.TempDir(), Endpoint: "http://127.0.0.1:9000"})
	if _, ok := sink.(*recorder.S3Sink); !ok || err != nil {
		t.Errorf("NewSink(bucket) = %T, %v; want *recorder.S3Sink", sink, err)
	}
}

func serve(t *testing.T, ctx context.Context, n *Node) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx, ln) }()
	return ln.Addr().String(), done
}

func TestNodesReplicate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &memorySink{}
	a, err := New(testConfig("alpha"), Options{Logger: discard(), Sink: sink})
	if err != nil {
		t.Fatalf("New(alpha) error = %v", err)
	}
	addr, doneA := serve(t, ctx, a)

	cfgB := testConfig("beta")
	cfgB.Peers = []string{"ws://" + addr + "/ws"}
	cfgB.Demo.Origin = [3]float64{100, 0, 0}
	b, err := New(cfgB, Options{Logger: discard()})
	if err != nil {
		t.Fatalf("New(beta) error = %v", err)
	}
	_, doneB := serve(t, ctx, b)

	deadline := time.Now().Add(10 * time.Second)
	for {
		pa, pb := a.Peers(), b.Peers()
		if len(pa) == 1 && len(pb) == 1 && pa[0].Position != nil &&
			a.Greetings("beta") == 1 && b.Greetings("alpha") == 1 {
			if pa[0].Name != "beta" {
				t.Errorf("alpha sees peer %q, want beta", pa[0].Name)
			}
			if x := pa[0].Position[0]; x < 90 {
				t.Errorf("beta's ghost x = %v, want near its origin at 100", x)
			}
			if pa[0].Origin == nil || pa[0].Origin[0] < 90 {
				t.Errorf("beta's ghost origin = %v, want its ghost position", pa[0].Origin)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("nodes did not replicate: alpha=%+v beta=%+v", pa, pb)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + addr + "/peers")
	if err != nil {
		t.Fatalf("GET /peers error = %v", err)
	}
	var listed []PeerInfo
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed) != 1 || listed[0].Name != "beta" {
		t.Errorf("/peers = %+v, want beta", listed)
	}

	cancel()
	for _, done := range []<-chan error{doneA, doneB} {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("Serve() did not return after cancel")
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.segments) != 1 {
		t.Fatalf("recorded %d segments, want 1 flushed on shutdown", len(sink.segments))
	}
	_, recs, err := recorder.ReadAll(bytes.NewReader(sink.segments[0]))
	if err != nil || len(recs) == 0 {
		t.Errorf("recording = %d records, %v; want traffic", len(recs), err)
	}
}

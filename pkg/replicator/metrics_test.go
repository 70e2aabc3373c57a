package replicator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func TestMetricsRecordTraffic(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(WithRegistry(reg), WithNamespace("test"), WithConstLabels(prometheus.Labels{"node": "a"}))

	_, a, b := connectedPair(t, WithMetrics(metrics))
	run(t, 2, a, b)

	if got := metricGaugeValue(t, metrics.peersConnected); got != 1 {
		t.Errorf("peers_connected = %v, want 1", got)
	}
	if got := metricCounterValue(t, metrics.messagesSent.WithLabelValues("IAm")); got == 0 {
		t.Errorf("messages_sent_total{type=IAm} = 0, want > 0")
	}
	if got := metricCounterValue(t, metrics.messagesReceived.WithLabelValues("Pong")); got == 0 {
		t.Errorf("messages_received_total{type=Pong} = 0, want > 0")
	}
	if got := metricCounterValue(t, metrics.bytesSent); got == 0 {
		t.Errorf("bytes_sent_total = 0, want > 0")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_round_trip_seconds" {
			found = true
		}
	}
	if !found {
		t.Errorf("test_round_trip_seconds not registered")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.recordSent(1, 10)
	m.recordDropped("x")
	m.setPeers(3)
	m.observeTick(0.1)
}

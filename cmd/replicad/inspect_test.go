package main

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
	"github.com/apistol78/traktor-sub009/pkg/recorder"
)

func recording(t *testing.T) []byte {
	t.Helper()
	rec := recorder.New(nil)
	for _, step := range []struct {
		sent bool
		peer uint64
		msg  *protocol.Message
	}{
		{true, 1, protocol.NewIAm(10, 0, protocol.ID{1})},
		{false, 1, protocol.NewIAm(20, 1, protocol.ID{1})},
		{true, 2, protocol.NewPing(30)},
		{false, 1, protocol.NewState(40, []byte{1, 2, 3})},
	} {
		data, err := protocol.EncodeMessage(step.msg)
		if err != nil {
			t.Fatalf("EncodeMessage() error = %v", err)
		}
		if step.sent {
			rec.RecordSent(float64(step.msg.Time)/1000, peers.Handle(step.peer), data)
		} else {
			rec.RecordReceived(float64(step.msg.Time)/1000, peers.Handle(step.peer), data)
		}
	}
	rec.RecordReceived(0.05, 1, []byte{0xff})
	return rec.Snapshot()
}

func TestInspect(t *testing.T) {
	data := recording(t)

	tests := []struct {
		name      string
		opts      inspectOptions
		want      []string
		wantCount string
	}{
		{
			name:      "all",
			want:      []string{"tx peer=1", "IAm{seq=0", "rx peer=1", "Ping{t=30}", "State{t=40 size=3}", "undecodable"},
			wantCount: "5 of 5 records",
		},
		{
			name:      "by peer",
			opts:      inspectOptions{peer: 2},
			want:      []string{"Ping{t=30}"},
			wantCount: "1 of 5 records",
		},
		{
			name:      "by type",
			opts:      inspectOptions{types: []string{"state"}},
			want:      []string{"State{t=40 size=3}"},
			wantCount: "2 of 5 records",
		},
		{
			name:      "hex",
			opts:      inspectOptions{peer: 2, hexDump: true},
			want:      []string{"03 00 00 00 1e"},
			wantCount: "1 of 5 records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := inspect(&out, bytes.NewReader(data), tt.opts); err != nil {
				t.Fatalf("inspect() error = %v", err)
			}
			for _, want := range append(tt.want, tt.wantCount) {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	err := inspect(&bytes.Buffer{}, strings.NewReader("definitely not a recording"), inspectOptions{})
	var ce *errors.CLIError
	if !stderrors.As(err, &ce) || ce.Code != "R300" {
		t.Errorf("inspect() error = %v, want R300", err)
	}
}

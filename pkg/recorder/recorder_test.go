package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

type memorySink struct {
	names []string
	data  [][]byte
	err   error
}

func (s *memorySink) Store(_ context.Context, name string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.names = append(s.names, name)
	s.data = append(s.data, data)
	return nil
}

func TestRecorderRoundTrip(t *testing.T) {
	session := uuid.MustParse("6f1c2b3a-9d4e-4f50-8a61-7b2c3d4e5f60")
	sink := &memorySink{}
	rec := New(sink, WithSession(session))

	rec.RecordSent(1.5, peers.Handle(3), []byte{0x01, 0x02})
	rec.RecordReceived(1.75, peers.Handle(4), []byte{0x05})
	rec.RecordReceived(2, peers.Handle(4), nil)

	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(sink.names) != 1 {
		t.Fatalf("stored %d segments, want 1", len(sink.names))
	}
	if want := session.String() + "-000000.rec"; sink.names[0] != want {
		t.Errorf("segment name = %q, want %q", sink.names[0], want)
	}

	hdr, recs, err := ReadAll(bytes.NewReader(sink.data[0]))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if hdr.Session != session {
		t.Errorf("Session = %v, want %v", hdr.Session, session)
	}

	want := []Record{
		{Direction: Sent, Time: 1.5, Peer: 3, Data: []byte{0x01, 0x02}},
		{Direction: Received, Time: 1.75, Peer: 4, Data: []byte{0x05}},
		{Direction: Received, Time: 2, Peer: 4, Data: []byte{}},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, w := range want {
		got := recs[i]
		if got.Direction != w.Direction || got.Time != w.Time || got.Peer != w.Peer || !bytes.Equal(got.Data, w.Data) {
			t.Errorf("record %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestFlushSegments(t *testing.T) {
	sink := &memorySink{}
	rec := New(sink)

	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() on empty recorder error = %v", err)
	}
	if len(sink.names) != 0 {
		t.Errorf("empty segment was stored")
	}

	rec.RecordSent(0, 1, []byte{1})
	_ = rec.Flush(context.Background())
	rec.RecordSent(0, 1, []byte{2})
	_ = rec.Flush(context.Background())

	if len(sink.names) != 2 {
		t.Fatalf("stored %d segments, want 2", len(sink.names))
	}
	if !strings.HasSuffix(sink.names[1], "-000001.rec") {
		t.Errorf("second segment = %q, want suffix -000001.rec", sink.names[1])
	}
	_, recs, err := ReadAll(bytes.NewReader(sink.data[1]))
	if err != nil || len(recs) != 1 || recs[0].Data[0] != 2 {
		t.Errorf("second segment = %v, %v; want one record with data 2", recs, err)
	}
}

func TestFlushErrors(t *testing.T) {
	if err := New(nil).Flush(context.Background()); !errors.Is(err, ErrNoSink) {
		t.Errorf("Flush() without sink error = %v, want ErrNoSink", err)
	}

	boom := errors.New("boom")
	rec := New(&memorySink{err: boom})
	rec.RecordSent(0, 1, []byte{1})
	if err := rec.Flush(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Flush() error = %v, want wrapped sink error", err)
	}
}

func TestMaxBytesDrops(t *testing.T) {
	rec := New(nil, WithMaxBytes(headerSize+recordHeader+4))
	rec.RecordSent(0, 1, []byte{1, 2, 3, 4})
	rec.RecordSent(0, 1, []byte{5})

	if got := rec.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	_, recs, err := ReadAll(bytes.NewReader(rec.Snapshot()))
	if err != nil || len(recs) != 1 {
		t.Errorf("Snapshot() decoded %d records, err %v; want 1", len(recs), err)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrBadMagic},
		{"wrong magic", bytes.Repeat([]byte{'x'}, headerSize), ErrBadMagic},
		{"wrong version", append([]byte(magic), make([]byte, headerSize-4)...), ErrBadVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(bytes.NewReader(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("NewReader() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	rec := New(nil)
	rec.RecordSent(0, 1, []byte{1, 2, 3})
	data := rec.Snapshot()

	rd, err := NewReader(bytes.NewReader(data[:len(data)-1]))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := rd.Next(); !errors.Is(err, ErrBadRecord) {
		t.Errorf("Next() error = %v, want ErrBadRecord", err)
	}

	rd, _ = NewReader(bytes.NewReader(data[:headerSize]))
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() on empty segment error = %v, want io.EOF", err)
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if err := sink.Store(context.Background(), "a.rec", []byte("hello")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.rec"))
	if err != nil || string(got) != "hello" {
		t.Errorf("stored file = %q, %v; want hello", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.rec.tmp")); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind")
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	client := &fakeS3{}
	sink := NewS3Sink(client, "bucket", "replicad/")
	if err := sink.Store(context.Background(), "seg.rec", []byte{9, 8}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if got := *client.input.Bucket; got != "bucket" {
		t.Errorf("Bucket = %q, want bucket", got)
	}
	if got := *client.input.Key; got != "replicad/seg.rec" {
		t.Errorf("Key = %q, want replicad/seg.rec", got)
	}
	if !bytes.Equal(client.body, []byte{9, 8}) {
		t.Errorf("Body = %v, want [9 8]", client.body)
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	sink := &memorySink{}
	rec := New(sink)
	rec.RecordSent(0, 1, []byte{1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx, time.Hour); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.names) != 1 {
		t.Errorf("stored %d segments after cancel, want 1", len(sink.names))
	}
}

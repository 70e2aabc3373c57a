package peers

import (
	"errors"
	"testing"
)

func TestMeshDelivery(t *testing.T) {
	m := NewMesh()
	a := m.Join("a")
	b := m.Join("b")
	c := m.Join("c")

	if got := a.PeerHandles(); len(got) != 2 || got[0] != b.Handle() || got[1] != c.Handle() {
		t.Errorf("PeerHandles() = %v, want [%v %v]", got, b.Handle(), c.Handle())
	}
	if !a.IsPrimary() || b.IsPrimary() {
		t.Errorf("IsPrimary() a=%v b=%v, want true false", a.IsPrimary(), b.IsPrimary())
	}
	if a.PeerName(b.Handle()) != "b" {
		t.Errorf("PeerName() = %q, want b", a.PeerName(b.Handle()))
	}

	payload := []byte{1, 2, 3}
	if err := a.Send(b.Handle(), payload, false); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	payload[0] = 9

	if !b.ReceiveAnyPending() {
		t.Fatalf("ReceiveAnyPending() = false after send")
	}
	buf := make([]byte, 16)
	n, from, err := b.Receive(buf)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if from != a.Handle() || n != 3 || buf[0] != 1 {
		t.Errorf("Receive() = %d %v %x, want 3 %v 010203", n, from, buf[:n], a.Handle())
	}
	if b.ReceiveAnyPending() {
		t.Errorf("ReceiveAnyPending() = true after drain")
	}
	if _, _, err := b.Receive(buf); !errors.Is(err, ErrNoPending) {
		t.Errorf("Receive() on empty inbox error = %v, want ErrNoPending", err)
	}
}

func TestMeshLossAndPartition(t *testing.T) {
	m := NewMesh()
	a := m.Join("a")
	b := m.Join("b")

	m.Partition(a.Handle(), b.Handle(), true)
	_ = a.Send(b.Handle(), []byte{1}, false)
	_ = b.Send(a.Handle(), []byte{1}, false)
	if a.ReceiveAnyPending() || b.ReceiveAnyPending() {
		t.Errorf("partitioned endpoints received data")
	}
	m.Partition(a.Handle(), b.Handle(), false)

	m.SetDrop(func(from, to Handle, data []byte) bool { return data[0] == 0 })
	_ = a.Send(b.Handle(), []byte{0}, false)
	_ = a.Send(b.Handle(), []byte{1}, false)
	buf := make([]byte, 4)
	n, _, _ := b.Receive(buf)
	if n != 1 || buf[0] != 1 || b.ReceiveAnyPending() {
		t.Errorf("drop function not applied")
	}
}

func TestMeshLeave(t *testing.T) {
	m := NewMesh()
	a := m.Join("a")
	b := m.Join("b")
	m.Leave(b)

	if got := a.PeerHandles(); len(got) != 0 {
		t.Errorf("PeerHandles() after leave = %v, want empty", got)
	}
	if err := a.Send(b.Handle(), []byte{1}, true); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Send() to departed peer error = %v, want ErrUnknownPeer", err)
	}
	if err := b.Update(); !errors.Is(err, ErrClosed) {
		t.Errorf("Update() after leave error = %v, want ErrClosed", err)
	}
}

func TestReceiveBufferTooSmall(t *testing.T) {
	m := NewMesh()
	a := m.Join("a")
	b := m.Join("b")
	_ = m.Inject(a.Handle(), b.Handle(), []byte{1, 2, 3, 4})
	if _, _, err := b.Receive(make([]byte, 2)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Receive() error = %v, want ErrBufferTooSmall", err)
	}
}

package replicator

import (
	"slices"

	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// NotificationKind identifies what a Notification reports.
type NotificationKind uint8

const (
	KindConnected    NotificationKind = iota + 1 // Peer established
	KindDisconnected                             // Peer left or was dropped
	KindState                                    // New snapshot installed on the peer's ghost
	KindEvent                                    // Event delivered from the peer
)

// String returns the string representation of the kind.
func (k NotificationKind) String() string {
	switch k {
	case KindConnected:
		return "Connected"
	case KindDisconnected:
		return "Disconnected"
	case KindState:
		return "State"
	case KindEvent:
		return "Event"
	default:
		return "Unknown"
	}
}

// Notification is delivered to listeners at the end of each Update.
//
// Payload depends on Kind: the new *state.State for KindState, the decoded
// compact.Serializable for KindEvent, the disconnect reason (an error, nil
// for an orderly Bye) for KindDisconnected, and nil for KindConnected.
type Notification struct {
	Kind    NotificationKind
	Time    float64
	Handle  peers.Handle
	Payload any
}

// Listener receives replicator notifications. Notify runs inside Update
// and may call back into the replicator.
type Listener interface {
	Notify(r *Replicator, ev Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(r *Replicator, ev Notification)

// Notify calls f(r, ev).
func (f ListenerFunc) Notify(r *Replicator, ev Notification) {
	f(r, ev)
}

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id        ListenerID
	eventType string
	listener  Listener
}

func (e *listenerEntry) accepts(ev *Notification) bool {
	if e.eventType == "" {
		return true
	}
	if ev.Kind != KindEvent {
		return false
	}
	obj, ok := ev.Payload.(compact.Serializable)
	return ok && obj.TypeName() == e.eventType
}

// AddListener registers l for every notification.
func (r *Replicator) AddListener(l Listener) ListenerID {
	return r.addListener("", l)
}

// AddEventListener registers l for events whose type name is eventType.
func (r *Replicator) AddEventListener(eventType string, l Listener) ListenerID {
	return r.addListener(eventType, l)
}

func (r *Replicator) addListener(eventType string, l Listener) ListenerID {
	r.nextListener++
	r.listeners = append(r.listeners, listenerEntry{id: r.nextListener, eventType: eventType, listener: l})
	return r.nextListener
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (r *Replicator) RemoveListener(id ListenerID) {
	r.listeners = slices.DeleteFunc(r.listeners, func(e listenerEntry) bool {
		return e.id == id
	})
}

func (r *Replicator) notify(ev Notification) {
	for _, e := range slices.Clone(r.listeners) {
		if e.accepts(&ev) {
			e.listener.Notify(r, ev)
		}
	}
}

// dispatch delivers the queued notifications in arrival order.
func (r *Replicator) dispatch() {
	queued := r.pending
	r.pending = nil
	for _, ev := range queued {
		r.notify(ev)
	}
}

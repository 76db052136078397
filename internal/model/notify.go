package model

import (
	"maps"
	"slices"
	"sync"
)

// Field names a mutable or derived property in a change notification.
type Field string

const (
	FieldEntries         Field = "Entries"
	FieldAuth            Field = "Auth"
	FieldMethod          Field = "Method"
	FieldBaseTarget      Field = "BaseTarget"
	FieldEffectiveTarget Field = "EffectiveTarget"
	FieldQuery           Field = "Query"
	FieldHeaders         Field = "Headers"
	FieldBody            Field = "Body"
	FieldStatus          Field = "Status"
	FieldChunks          Field = "Chunks"
	FieldResponse        Field = "Response"
	FieldTarget          Field = "Target"
	FieldConnection      Field = "ConnectionState"
	FieldConnectLabel    Field = "ConnectLabel"
	FieldPendingMessage  Field = "PendingMessage"
	FieldTranscript      Field = "Transcript"
	FieldDescriptor      Field = "DescriptorSource"
	FieldServices        Field = "DiscoveredServices"
	FieldService         Field = "Service"
	FieldMethods         Field = "DiscoveredMethods"
	FieldMetadata        Field = "Metadata"
	FieldPayload         Field = "RequestPayload"
	FieldName            Field = "Name"
	FieldLabel           Field = "DisplayLabel"
	FieldSelected        Field = "Selected"
	FieldTabs            Field = "Tabs"
	FieldCollections     Field = "Collections"
)

// Change is delivered to observers after a mutation commits.
type Change struct {
	Field Field
}

// Observer receives change notifications. Observers run on the goroutine
// that made the change, after the change is visible through getters.
// They must not mutate the object that notified them.
type Observer func(Change)

// notifier fans changes out to subscribed observers.
type notifier struct {
	mu        sync.Mutex
	next      int
	observers map[int]Observer
}

// Subscribe registers fn and returns a function that removes it.
func (n *notifier) Subscribe(fn Observer) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.observers == nil {
		n.observers = make(map[int]Observer)
	}
	id := n.next
	n.next++
	n.observers[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
	}
}

func (n *notifier) publish(fields []Field) {
	if len(fields) == 0 {
		return
	}
	n.mu.Lock()
	ids := slices.Sorted(maps.Keys(n.observers))
	obs := make([]Observer, 0, len(ids))
	for _, id := range ids {
		obs = append(obs, n.observers[id])
	}
	n.mu.Unlock()

	for _, f := range fields {
		for _, fn := range obs {
			fn(Change{Field: f})
		}
	}
}

// guard serializes writes to one record. Notifications collected during a
// write are delivered after the state lock is released, in write order.
type guard struct {
	mu  sync.RWMutex
	pub sync.Mutex
	notifier
}

// emitter collects the fields touched by one write.
type emitter struct {
	fields []Field
}

func (e *emitter) emit(fields ...Field) {
	for _, f := range fields {
		dup := false
		for _, have := range e.fields {
			if have == f {
				dup = true
				break
			}
		}
		if !dup {
			e.fields = append(e.fields, f)
		}
	}
}

// write runs fn under the write lock and then publishes what it emitted.
func (g *guard) write(fn func(e *emitter)) {
	var e emitter
	g.mu.Lock()
	fn(&e)
	g.pub.Lock()
	g.mu.Unlock()
	defer g.pub.Unlock()
	g.publish(e.fields)
}

// writeErr is write for mutations that can be rejected. Nothing is
// published when fn returns an error.
func (g *guard) writeErr(fn func(e *emitter) error) error {
	var e emitter
	g.mu.Lock()
	err := fn(&e)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	g.pub.Lock()
	g.mu.Unlock()
	defer g.pub.Unlock()
	g.publish(e.fields)
	return nil
}

// publishNow delivers a change whose state lives outside this guard.
func (g *guard) publishNow(fields ...Field) {
	g.pub.Lock()
	defer g.pub.Unlock()
	g.publish(fields)
}

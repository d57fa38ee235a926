// Package codec maps stable event name tags to payload encode/decode
// functions. Every event type a stream may contain must be registered at
// startup; an unregistered tag during replay is schema drift and fails hard.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent indicates an event tag with no registered decoder.
	ErrUnknownEvent = errors.New("codec: unknown event name")

	// ErrDuplicateEvent indicates a tag registered twice.
	ErrDuplicateEvent = errors.New("codec: event name already registered")
)

// Event is a domain event payload. Implementations identify themselves by a
// stable name tag that survives renames of the Go type.
type Event interface {
	EventName() string
}

type DecodeFunc func(data []byte) (Event, error)

// Registry is the explicit tag-to-decoder mapping. It is populated once at
// startup and read-only afterwards, so no locking is needed.
type Registry struct {
	decoders map[string]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

func (r *Registry) Register(name string, decode DecodeFunc) error {
	if name == "" {
		return errors.New("codec: empty event name")
	}
	if decode == nil {
		return errors.New("codec: nil decode func")
	}
	if _, ok := r.decoders[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, name)
	}
	r.decoders[name] = decode
	return nil
}

// MustRegister registers or panics. Intended for package init wiring where a
// duplicate registration is a programming error.
func (r *Registry) MustRegister(name string, decode DecodeFunc) {
	if err := r.Register(name, decode); err != nil {
		panic(err)
	}
}

// Encode serializes an event to JSON and returns its name tag alongside.
func (r *Registry) Encode(e Event) (string, []byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("codec: encode %s: %w", e.EventName(), err)
	}
	return e.EventName(), data, nil
}

// Decode resolves the tag and rebuilds the event. Unknown tags return
// ErrUnknownEvent; callers must treat that as fatal, never skip.
func (r *Registry) Decode(name string, data []byte) (Event, error) {
	decode, ok := r.decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	e, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("codec: decode %s: %w", name, err)
	}
	return e, nil
}

// Known reports whether a tag has a registered decoder.
func (r *Registry) Known(name string) bool {
	_, ok := r.decoders[name]
	return ok
}

package codec

import (
	"encoding/json"
	"errors"
	"testing"
)

type opened struct {
	Owner string `json:"owner"`
}

func (opened) EventName() string { return "account.opened.v1" }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Register("account.opened.v1", func(b []byte) (Event, error) {
		var e opened
		return e, json.Unmarshal(b, &e)
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	name, data, err := r.Encode(opened{Owner: "ada"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if name != "account.opened.v1" {
		t.Fatalf("expected tag account.opened.v1, got %s", name)
	}

	decoded, err := r.Decode(name, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	got, ok := decoded.(opened)
	if !ok {
		t.Fatalf("expected opened, got %T", decoded)
	}
	if got.Owner != "ada" {
		t.Fatalf("expected owner ada, got %s", got.Owner)
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Decode("account.closed.v1", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register("account.opened.v1", func(b []byte) (Event, error) {
		var e opened
		return e, json.Unmarshal(b, &e)
	})
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", func(b []byte) (Event, error) { return nil, nil }); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := r.Register("x", nil); err == nil {
		t.Fatal("expected error for nil decode func")
	}
}

func TestKnown(t *testing.T) {
	r := newTestRegistry(t)
	if !r.Known("account.opened.v1") {
		t.Fatal("expected registered tag to be known")
	}
	if r.Known("nope") {
		t.Fatal("expected unregistered tag to be unknown")
	}
}

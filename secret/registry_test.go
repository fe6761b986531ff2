package secret

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("stub", func(map[string]any) (Provider, error) {
		return &stubProvider{name: "stub"}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	p, err := reg.Create("stub", nil)
	if err != nil || p.Name() != "stub" {
		t.Fatalf("Create() = %v, %v", p, err)
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry()
	factory := func(map[string]any) (Provider, error) { return &stubProvider{name: "stub"}, nil }
	_ = reg.Register("stub", factory)

	if err := reg.Register("stub", factory); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("duplicate error = %v", err)
	}
	if err := reg.Register(" ", factory); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("blank name error = %v", err)
	}
	if err := reg.Register("nil", nil); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("nil factory error = %v", err)
	}
	if _, err := reg.Create("missing", nil); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("unknown error = %v", err)
	}
}

func TestRegistry_ResolverPropagatesFactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("bad config")
	_ = reg.Register("broken", func(map[string]any) (Provider, error) { return nil, boom })

	if _, err := reg.Resolver(true, nil); !errors.Is(err, boom) {
		t.Errorf("Resolver() error = %v, want %v", err, boom)
	}
}

func TestDefaultRegistry_List(t *testing.T) {
	if got := DefaultRegistry.List(); !reflect.DeepEqual(got, []string{"env", "file"}) {
		t.Errorf("List() = %v", got)
	}
}

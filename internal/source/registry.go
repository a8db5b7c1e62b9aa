package source

import (
	"errors"
	"fmt"
)

// Registry is the fixed, ordered set of sources a pipeline reads from.
type Registry struct {
	sources []Source
}

// NewRegistry returns a registry holding sources in the given order. Nil
// sources and duplicate names are rejected.
func NewRegistry(sources ...Source) (*Registry, error) {
	seen := make(map[string]bool, len(sources))
	out := make([]Source, 0, len(sources))
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("registry: source %d is nil", i)
		}
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("registry: source %d has an empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("registry: duplicate source %q", name)
		}
		seen[name] = true
		out = append(out, s)
	}
	return &Registry{sources: out}, nil
}

// Sources returns a copy of the registered sources in registration order.
func (r *Registry) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

func (r *Registry) Len() int { return len(r.sources) }

// Builtin returns the built-in blog adapters in their canonical order.
func Builtin(opts Options) []Source {
	return []Source{
		NewUber(opts),
		NewNetflix(opts),
		NewAirbnb(opts),
		NewLyft(opts),
		NewAWS(opts),
		NewByteByteGo(opts),
	}
}

// BuiltinNames lists the names of the built-in adapters in canonical order.
func BuiltinNames() []string {
	return []string{uberName, netflixName, airbnbName, lyftName, awsName, byteByteGoName}
}

// Select keeps the sources named in enabled, preserving the order of all.
// An empty enabled list keeps everything. Unknown names are an error.
func Select(all []Source, enabled []string) ([]Source, error) {
	if len(enabled) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}
	var out []Source
	for _, s := range all {
		if want[s.Name()] {
			out = append(out, s)
			delete(want, s.Name())
		}
	}
	if len(want) > 0 {
		var unknown []error
		for _, name := range enabled {
			if want[name] {
				unknown = append(unknown, fmt.Errorf("unknown source %q", name))
				delete(want, name)
			}
		}
		return nil, errors.Join(unknown...)
	}
	return out, nil
}

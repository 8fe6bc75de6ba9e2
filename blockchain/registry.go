package blockchain

import (
	"fmt"
	"sort"
)

// Registry maps service ids to services. It is immutable after construction.
type Registry struct {
	byID  map[uint16]Service
	order []Service
}

// NewRegistry returns a registry of services, rejecting nil services, empty
// names and colliding ids or names.
func NewRegistry(services ...Service) (*Registry, error) {
	r := &Registry{byID: make(map[uint16]Service, len(services))}
	names := make(map[string]uint16, len(services))
	for i, s := range services {
		if s == nil {
			return nil, newError(KindRegistration, "REG-001", fmt.Sprintf("service %d is nil", i))
		}
		if s.Name() == "" {
			return nil, newError(KindRegistration, "REG-002", fmt.Sprintf("service id %d has no name", s.ID()))
		}
		if prev, ok := r.byID[s.ID()]; ok {
			return nil, newError(KindRegistration, "REG-003",
				fmt.Sprintf("service id %d used by both %q and %q", s.ID(), prev.Name(), s.Name()))
		}
		if id, ok := names[s.Name()]; ok {
			return nil, newError(KindRegistration, "REG-004",
				fmt.Sprintf("service name %q used by ids %d and %d", s.Name(), id, s.ID()))
		}
		r.byID[s.ID()] = s
		names[s.Name()] = s.ID()
		r.order = append(r.order, s)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i].ID() < r.order[j].ID() })
	return r, nil
}

// Lookup returns the service registered under id.
func (r *Registry) Lookup(id uint16) (Service, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Services returns the registered services ordered by id.
func (r *Registry) Services() []Service {
	return append([]Service(nil), r.order...)
}

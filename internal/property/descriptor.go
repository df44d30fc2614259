// Package property keeps a local cache of remote properties in sync with a
// service that offers both pull queries and push notifications.
//
// Each kind of entity declares a Set of Descriptors. An Engine binds a Set
// to a Connection: it subscribes to push notifications, issues one pull
// query per property whenever the connection becomes usable, merges values
// from both channels and reports changes through registered handlers.
package property

import "fmt"

// ValidField is the field name used for validity change notifications.
const ValidField = "valid"

// DecodeFunc converts a raw wire value into a typed value. ok is false when
// the wire value is not recognized.
type DecodeFunc func(wire any) (value any, ok bool)

// Range is an inclusive clamp applied to integer values.
type Range struct {
	Min int
	Max int
}

// Clamp returns v limited to [r.Min, r.Max].
func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Descriptor declares one remote property.
type Descriptor struct {
	// Name identifies the field in change notifications.
	Name string
	// Signal is the push notification member carrying this property.
	Signal string
	// Method is the pull query returning this property.
	Method string
	// Decode converts the first argument of a signal or reply.
	Decode DecodeFunc
	// Default is the cached value before anything has been received.
	Default any
	// Unknown is used when Decode does not recognize the wire value.
	// nil keeps the currently cached value instead.
	Unknown any
	// Range, if set, clamps integer values before comparison.
	Range *Range
	// Required properties must be populated for the entity to be valid.
	Required bool
}

// Derived is a field computed from another field of the same Set.
type Derived struct {
	Name    string
	From    string
	Default any
	Compute func(source any) any
}

// Set is the immutable list of fields for one entity kind.
type Set struct {
	descs   []Descriptor
	derived []Derived
	index   map[string]int
	// dependents maps a descriptor index to the derived field indexes
	// computed from it.
	dependents map[int][]int
}

// NewSet builds a Set. It panics on duplicate or dangling names since sets
// are declared once at package initialization.
func NewSet(descs []Descriptor, derived ...Derived) *Set {
	s := &Set{
		descs:      append([]Descriptor(nil), descs...),
		derived:    append([]Derived(nil), derived...),
		index:      make(map[string]int, len(descs)+len(derived)),
		dependents: make(map[int][]int),
	}
	for i, d := range s.descs {
		if d.Name == "" || d.Name == ValidField {
			panic(fmt.Sprintf("property: invalid descriptor name %q", d.Name))
		}
		if d.Decode == nil {
			panic(fmt.Sprintf("property: descriptor %q has no decoder", d.Name))
		}
		if _, dup := s.index[d.Name]; dup {
			panic(fmt.Sprintf("property: duplicate field %q", d.Name))
		}
		s.index[d.Name] = i
	}
	for j, d := range s.derived {
		if _, dup := s.index[d.Name]; dup || d.Name == ValidField {
			panic(fmt.Sprintf("property: duplicate field %q", d.Name))
		}
		src, ok := s.index[d.From]
		if !ok || src >= len(s.descs) {
			panic(fmt.Sprintf("property: derived field %q has unknown source %q", d.Name, d.From))
		}
		idx := len(s.descs) + j
		s.index[d.Name] = idx
		s.dependents[src] = append(s.dependents[src], idx)
	}
	return s
}

// Len returns the number of fields, derived ones included.
func (s *Set) Len() int {
	return len(s.descs) + len(s.derived)
}

// Names returns all field names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, 0, s.Len())
	for _, d := range s.descs {
		names = append(names, d.Name)
	}
	for _, d := range s.derived {
		names = append(names, d.Name)
	}
	return names
}

// Descriptors returns the declared (non-derived) properties.
func (s *Set) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.descs...)
}

// Has reports whether name is a field of the set.
func (s *Set) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Set) defaultOf(i int) any {
	if i < len(s.descs) {
		return s.descs[i].Default
	}
	return s.derived[i-len(s.descs)].Default
}

func (s *Set) nameOf(i int) string {
	if i < len(s.descs) {
		return s.descs[i].Name
	}
	return s.derived[i-len(s.descs)].Name
}

package di

import (
	"errors"
	"reflect"
)

var (
	// ErrNilTarget is returned when an injector is applied to a nil service
	// or a service with a nil Val.
	ErrNilTarget = errors.New("di: nil target service")

	// ErrNilDep is returned when an injector is created/applied with a nil dependency
	// service or a dependency service with a nil Val. Some helpers return a more
	// specific typed error with key context (see NilDependencyServiceError).
	ErrNilDep = errors.New("di: nil dependency service")

	// ErrNilBind is returned when an injector is created with a nil bind function.
	// Some helpers return a more specific typed error with key context (see NilBindError).
	ErrNilBind = errors.New("di: nil bind function")
)

// DuplicateKeyError is returned when an injector attempts to record a dependency
// under a key that already exists in the target Service.
type DuplicateKeyError struct{ Key Key }

// Error implements the error interface.
func (e DuplicateKeyError) Error() string {
	// Example: di: duplicate dependency key *login.Credentials@login
	return "di: duplicate dependency key " + e.Key.String()
}

// MissingDependencyError is returned when a dependency key is not present.
//
// It is used by TryGetAs to distinguish "missing" from "wrong type".
type MissingDependencyError struct{ Key Key }

// Error implements the error interface.
func (e MissingDependencyError) Error() string {
	return "di: dependency " + e.Key.String() + " missing"
}

// WrongTypeDependencyError is returned when a dependency exists but is of a different type.
type WrongTypeDependencyError struct {
	// Key is the dependency key requested.
	Key Key

	// GotType is reflect.TypeOf(raw).String() for the stored value.
	GotType string
}

// Error implements the error interface.
func (e WrongTypeDependencyError) Error() string {
	return "di: dependency " + e.Key.String() + " has wrong type (" + e.GotType + ")"
}

// NilDependencyServiceError indicates a nil dependency service for a specific key.
type NilDependencyServiceError struct{ Key Key }

// Error implements the error interface.
func (e NilDependencyServiceError) Error() string {
	return "di: nil dependency service for key " + e.Key.String()
}

// Is makes errors.Is(err, ErrNilDep) match.
func (e NilDependencyServiceError) Is(target error) bool { return target == ErrNilDep }

// NilBindError indicates a nil bind function for a specific key.
type NilBindError struct{ Key Key }

// Error implements the error interface.
func (e NilBindError) Error() string {
	return "di: nil bind function for key " + e.Key.String()
}

// Is makes errors.Is(err, ErrNilBind) match.
func (e NilBindError) Is(target error) bool { return target == ErrNilBind }

// Service is a constructed value plus the dependencies recorded while wiring it.
//
// Deps is keyed by Key, so a service can hold two dependencies of the same
// type as long as their qualifiers differ:
//
//	di.Injecting(di.KeyOf[*Credentials](), svcAccount, bindService)
//	di.Injecting(di.QualifiedKey[*Credentials, annotations.Login](), login, bindLogin)
//
// Typed retrieval is available via GetAs / TryGetAs / MustGetAs.
type Service[T any] struct {
	Val  *T
	Deps map[Key]any
}

// Init constructs a Service by calling ctor and initializing the dependency bag.
func Init[T any](ctor func() *T) *Service[T] {
	return &Service[T]{Val: ctor(), Deps: make(map[Key]any)}
}

// Value returns the constructed value pointer.
func (s *Service[T]) Value() *T { return s.Val }

// Injector mutates a Service in-place and returns an error if wiring fails.
type Injector[T any] func(*Service[T]) error

// With applies a single injector to the Service.
//
// If inj is nil, With is a no-op and returns (s, nil).
func (s *Service[T]) With(inj Injector[T]) (*Service[T], error) {
	if inj == nil {
		return s, nil
	}
	if err := inj(s); err != nil {
		return s, err
	}
	return s, nil
}

// WithAll applies multiple injectors in order and stops at the first error.
func (s *Service[T]) WithAll(deps ...Injector[T]) (*Service[T], error) {
	for _, inj := range deps {
		if _, err := s.With(inj); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s *Service[T]) record(key Key, dep any) error {
	if s.Deps == nil {
		s.Deps = make(map[Key]any)
	}
	if _, exists := s.Deps[key]; exists {
		return DuplicateKeyError{Key: key}
	}
	s.Deps[key] = dep
	return nil
}

// Injecting builds an Injector that binds a dependency service into a target.
//
// The returned injector fails if:
//   - the target service (or its Val) is nil (ErrNilTarget)
//   - the dependency service (or its Val) is nil (NilDependencyServiceError)
//   - bind is nil (NilBindError)
//   - key already exists in the target's Deps (DuplicateKeyError)
func Injecting[T any, D any](
	key Key,
	dep *Service[D],
	bind func(target *T, dependency *D),
) Injector[T] {
	return func(s *Service[T]) error {
		if s == nil || s.Val == nil {
			return ErrNilTarget
		}
		if dep == nil || dep.Val == nil {
			return NilDependencyServiceError{Key: key}
		}
		if bind == nil {
			return NilBindError{Key: key}
		}
		d := dep.Val
		if err := s.record(key, d); err != nil {
			return err
		}
		bind(s.Val, d)
		return nil
	}
}

// FromResolver builds an Injector that resolves the dependency from r under
// key, records it and hands it to bind.
//
// key.Type() must be D; UnboundError is returned when r has no binding.
func FromResolver[T any, D any](key Key, r Resolver, bind func(target *T, dependency D)) Injector[T] {
	return func(s *Service[T]) error {
		if s == nil || s.Val == nil {
			return ErrNilTarget
		}
		if bind == nil {
			return NilBindError{Key: key}
		}
		d, err := ResolveAs[D](r, key)
		if err != nil {
			return err
		}
		if err := s.record(key, d); err != nil {
			return err
		}
		bind(s.Val, d)
		return nil
	}
}

// Has reports whether a dependency exists for the key (regardless of type).
func (s *Service[T]) Has(key Key) bool {
	if s == nil || s.Deps == nil {
		return false
	}
	_, ok := s.Deps[key]
	return ok
}

// GetAny returns the raw stored dependency value without type assertions.
func (s *Service[T]) GetAny(key Key) (any, bool) {
	if s == nil || s.Deps == nil {
		return nil, false
	}
	v, ok := s.Deps[key]
	return v, ok
}

// GetAs returns the dependency typed as *D.
//
// ok is false if the key is missing or the stored value is not a *D.
func GetAs[T any, D any](s *Service[T], key Key) (*D, bool) {
	if s == nil || s.Deps == nil {
		return nil, false
	}
	raw, ok := s.Deps[key]
	if !ok || raw == nil {
		return nil, false
	}
	d, ok := raw.(*D)
	return d, ok
}

// TryGetAs returns the dependency typed as *D.
//
// It returns:
//   - MissingDependencyError if the key is not present
//   - WrongTypeDependencyError if the key exists but is not a *D
func TryGetAs[T any, D any](s *Service[T], key Key) (*D, error) {
	if s == nil || s.Deps == nil {
		return nil, MissingDependencyError{Key: key}
	}
	raw, ok := s.Deps[key]
	if !ok || raw == nil {
		return nil, MissingDependencyError{Key: key}
	}
	d, ok := raw.(*D)
	if !ok {
		return nil, WrongTypeDependencyError{
			Key:     key,
			GotType: reflect.TypeOf(raw).String(),
		}
	}
	return d, nil
}

// MustGetAs returns the dependency typed as *D or panics.
func MustGetAs[T any, D any](s *Service[T], key Key) *D {
	d, ok := GetAs[T, D](s, key)
	if !ok {
		panic(MissingDependencyError{Key: key})
	}
	return d
}

// Clone returns a shallow copy of the Service.
//
// The constructed value pointer (Val) is shared.
// The dependency bag (Deps) is copied into a new map so further wiring does not
// mutate the original Service's Deps.
func (s *Service[T]) Clone() *Service[T] {
	if s == nil {
		return nil
	}
	cp := &Service[T]{Val: s.Val, Deps: make(map[Key]any, len(s.Deps))}
	for k, v := range s.Deps {
		cp.Deps[k] = v
	}
	return cp
}

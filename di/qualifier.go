package di

import (
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/maruel/natural"
)

// Qualifier is implemented by marker types that disambiguate bindings of the
// same type.
//
// A qualifier carries no data. Its identity is its Go type: two qualifiers with
// the same QualifierName but different types are different qualifiers.
//
// Example:
//
//	type Login struct{}
//
//	func (Login) QualifierName() string { return "login" }
type Qualifier interface {
	QualifierName() string
}

// Target is the set of program elements a qualifier may be attached to.
type Target uint8

const (
	// TargetField allows tagging struct fields (`inject:"name"` or Qualified fields).
	TargetField Target = 1 << iota
	// TargetParameter allows Qualified[T, Q] parameters on invoked functions and providers.
	TargetParameter
	// TargetMethod allows provider methods returning Qualified[T, Q].
	TargetMethod
	// TargetType allows embedding the marker in a struct type declaration.
	TargetType
)

var targetNames = []struct {
	t    Target
	name string
}{
	{TargetField, "field"},
	{TargetParameter, "parameter"},
	{TargetMethod, "method"},
	{TargetType, "type"},
}

// String renders the set as "field|parameter|method".
func (t Target) String() string {
	if t == 0 {
		return "none"
	}
	parts := make([]string, 0, len(targetNames))
	for _, tn := range targetNames {
		if t&tn.t != 0 {
			parts = append(parts, tn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseTarget converts a single target name ("field", "parameter", "method", "type").
func ParseTarget(name string) (Target, error) {
	for _, tn := range targetNames {
		if tn.name == name {
			return tn.t, nil
		}
	}
	return 0, errors.New("di: unknown target " + strconv.Quote(name))
}

// Declaration is the registered metadata of a qualifier.
type Declaration struct {
	Name    string
	Type    reflect.Type
	Targets Target
}

// Allows reports whether the qualifier may be attached to t. The empty set is
// never allowed.
func (d Declaration) Allows(t Target) bool { return t != 0 && d.Targets&t == t }

var (
	// ErrNoTargets is returned when a qualifier is declared without targets.
	ErrNoTargets = errors.New("di: qualifier declared without targets")

	// ErrEmptyQualifierName is returned when QualifierName returns "".
	ErrEmptyQualifierName = errors.New("di: qualifier name is empty")

	// ErrQualifierKind is returned when a pointer or interface type is declared.
	ErrQualifierKind = errors.New("di: qualifier must be a value type")
)

// DuplicateQualifierError is returned when a qualifier name is already bound to
// another type, or re-declared with different targets.
type DuplicateQualifierError struct {
	Name     string
	Existing reflect.Type
}

// Error implements the error interface.
func (e DuplicateQualifierError) Error() string {
	return "di: qualifier " + strconv.Quote(e.Name) + " already declared by " + e.Existing.String()
}

// InvalidTargetError is returned when a qualifier is attached to a program
// element it was not declared for.
type InvalidTargetError struct {
	Qualifier string
	Target    Target
	Site      string
}

// Error implements the error interface.
func (e InvalidTargetError) Error() string {
	// Example: di: qualifier "login" cannot annotate type mypkg.Session
	return "di: qualifier " + strconv.Quote(e.Qualifier) + " cannot annotate " + e.Target.String() + " " + e.Site
}

// UnknownQualifierError is returned when a tag names an undeclared qualifier.
type UnknownQualifierError struct {
	Name string
	Site string
}

// Error implements the error interface.
func (e UnknownQualifierError) Error() string {
	return "di: unknown qualifier " + strconv.Quote(e.Name) + " on " + e.Site
}

var declarations = struct {
	mu     sync.RWMutex
	byName map[string]Declaration
	byType map[reflect.Type]Declaration
}{
	byName: map[string]Declaration{},
	byType: map[reflect.Type]Declaration{},
}

var qualifierIface = reflect.TypeOf((*Qualifier)(nil)).Elem()

// Declare registers Q as a qualifier valid at the given targets.
//
// Declaring the same type twice with the same targets is a no-op. Q must be a
// value type such as an empty struct.
func Declare[Q Qualifier](targets ...Target) (Declaration, error) {
	typ := typeOf[Q]()
	if k := typ.Kind(); k == reflect.Pointer || k == reflect.Interface {
		return Declaration{}, ErrQualifierKind
	}
	var q Q
	return declare(typ, q.QualifierName(), targets)
}

// MustDeclare is Declare for package init blocks; it panics on error.
func MustDeclare[Q Qualifier](targets ...Target) Declaration {
	d, err := Declare[Q](targets...)
	if err != nil {
		panic(err)
	}
	return d
}

func declare(typ reflect.Type, name string, targets []Target) (Declaration, error) {
	if name == "" {
		return Declaration{}, ErrEmptyQualifierName
	}
	var set Target
	for _, t := range targets {
		set |= t
	}
	if set == 0 {
		return Declaration{}, ErrNoTargets
	}

	d := Declaration{Name: name, Type: typ, Targets: set}

	declarations.mu.Lock()
	defer declarations.mu.Unlock()

	if prev, ok := declarations.byName[name]; ok {
		if prev.Type == typ && prev.Targets == set {
			return prev, nil
		}
		return Declaration{}, DuplicateQualifierError{Name: name, Existing: prev.Type}
	}
	if prev, ok := declarations.byType[typ]; ok {
		// same type under a new name
		return Declaration{}, DuplicateQualifierError{Name: prev.Name, Existing: prev.Type}
	}
	declarations.byName[name] = d
	declarations.byType[typ] = d
	return d, nil
}

// Lookup returns the declaration registered under name.
func Lookup(name string) (Declaration, bool) {
	declarations.mu.RLock()
	defer declarations.mu.RUnlock()
	d, ok := declarations.byName[name]
	return d, ok
}

// DeclarationOf returns the declaration of Q.
func DeclarationOf[Q Qualifier]() (Declaration, bool) {
	return declarationOfType(typeOf[Q]())
}

func declarationOfType(typ reflect.Type) (Declaration, bool) {
	declarations.mu.RLock()
	defer declarations.mu.RUnlock()
	d, ok := declarations.byType[typ]
	return d, ok
}

// Declarations returns all registered qualifiers in natural order of their names.
func Declarations() []Declaration {
	declarations.mu.RLock()
	out := make([]Declaration, 0, len(declarations.byName))
	for _, d := range declarations.byName {
		out = append(out, d)
	}
	declarations.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return natural.Less(out[i].Name, out[j].Name) })
	return out
}

// CheckTarget returns an InvalidTargetError if d may not be attached to t.
func CheckTarget(d Declaration, t Target, site string) error {
	if d.Allows(t) {
		return nil
	}
	return InvalidTargetError{Qualifier: d.Name, Target: t, Site: site}
}

// qualifierFor resolves the declaration for a qualifier type used at a site.
// Qualifier types that were never declared are treated as unknown.
func qualifierFor(typ reflect.Type, t Target, site string) (Declaration, error) {
	d, ok := declarationOfType(typ)
	if !ok {
		return Declaration{}, UnknownQualifierError{Name: typ.String(), Site: site}
	}
	return d, CheckTarget(d, t, site)
}

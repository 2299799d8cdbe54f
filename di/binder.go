package di

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// Resolver supplies bound values by key at wiring time.
//
// It is intentionally:
// - side effect free for instance bindings
// - build-time only
//
// ok is false when nothing is bound under key; err reports a failing provider.
type Resolver interface {
	Resolve(key Key) (val any, ok bool, err error)
}

// ProviderFunc lazily constructs a bound value. It receives a Resolver for its
// own dependencies.
type ProviderFunc func(r Resolver) (any, error)

var (
	// ErrBindingPanic is returned if a provider panics during Resolve.
	ErrBindingPanic = errors.New("di: panic during Resolve")

	// ErrNilProvider is returned when a nil provider is bound.
	ErrNilProvider = errors.New("di: nil provider")

	// ErrNilInstance is returned when a nil instance is bound.
	ErrNilInstance = errors.New("di: nil instance")

	// ErrNilResolver is returned by typed helpers called with a nil Resolver.
	ErrNilResolver = errors.New("di: nil resolver")

	// ErrInvalidKey is returned when the zero Key is bound.
	ErrInvalidKey = errors.New("di: invalid key")
)

// DuplicateBindingError is returned when a key is bound twice.
type DuplicateBindingError struct{ Key Key }

// Error implements the error interface.
func (e DuplicateBindingError) Error() string {
	return "di: duplicate binding for " + describeKey(e.Key)
}

// UnboundError is returned when no binding exists for the requested key.
type UnboundError struct{ Key Key }

// Error implements the error interface.
func (e UnboundError) Error() string {
	// Example: di: no binding for type login.Credentials with qualifier "login"
	return "di: no binding for " + describeKey(e.Key)
}

// WrongTypeError is returned when a bound value is not assignable to the key type.
type WrongTypeError struct {
	Key Key
	Got string
}

// Error implements the error interface.
func (e WrongTypeError) Error() string {
	return "di: binding for " + describeKey(e.Key) + " has wrong type (" + e.Got + ")"
}

// CycleError is returned when providers depend on each other.
type CycleError struct{ Path []Key }

// Error implements the error interface.
func (e CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return "di: dependency cycle: " + strings.Join(parts, " -> ")
}

// ProviderError wraps an error returned by a provider.
type ProviderError struct {
	Key Key
	Err error
}

// Error implements the error interface.
func (e ProviderError) Error() string {
	return "di: provider for " + describeKey(e.Key) + " failed: " + e.Err.Error()
}

// Unwrap returns the provider's error.
func (e ProviderError) Unwrap() error { return e.Err }

func describeKey(k Key) string {
	if !k.IsQualified() {
		return "type " + k.Type().String()
	}
	return "type " + k.Type().String() + " with qualifier " + strconv.Quote(k.QualifierName())
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

type binding struct {
	provider ProviderFunc

	// guarded by Binder.mu
	val     any
	done    bool
	builder *resolution
	ready   chan struct{}
}

// Binder is a small binding table keyed by (type, qualifier).
//
// Instance bindings are returned as-is. Provider bindings are lazy singletons:
// a provider runs at most once successfully and its result is cached.
// Construction is serialized per binding, so a provider needs no locking of
// its own while unrelated bindings may be built concurrently.
//
// Providers should resolve their dependencies through the Resolver they are
// given. Resolving through the Binder itself also works, but a cycle closed
// that way cannot be told apart from a concurrent build and blocks.
//
// Binder is safe for concurrent use.
type Binder struct {
	mu       sync.RWMutex
	bindings map[Key]*binding

	log *zap.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger used for binding diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBinder returns an empty Binder.
func NewBinder(opts ...Option) *Binder {
	b := &Binder{bindings: map[Key]*binding{}, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BindInstance binds val under key.
func (b *Binder) BindInstance(key Key, val any) error {
	if key.IsZero() {
		return ErrInvalidKey
	}
	if val == nil {
		return ErrNilInstance
	}
	if !reflect.TypeOf(val).AssignableTo(key.Type()) {
		return WrongTypeError{Key: key, Got: typeName(val)}
	}
	return b.add(key, &binding{val: val, done: true})
}

// BindProvider binds a lazily constructed value under key.
func (b *Binder) BindProvider(key Key, p ProviderFunc) error {
	if key.IsZero() {
		return ErrInvalidKey
	}
	if p == nil {
		return ErrNilProvider
	}
	return b.add(key, &binding{provider: p})
}

func (b *Binder) add(key Key, bd *binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.bindings[key]; exists {
		return DuplicateBindingError{Key: key}
	}
	b.bindings[key] = bd
	b.log.Debug("Binding added", zap.Stringer("key", key), zap.Bool("lazy", bd.provider != nil))
	return nil
}

// Has reports whether key is bound.
func (b *Binder) Has(key Key) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.bindings[key]
	return ok
}

// Keys returns all bound keys in natural order of their string form, so
// "shard2" sorts before "shard10".
func (b *Binder) Keys() []Key {
	b.mu.RLock()
	out := make([]Key, 0, len(b.bindings))
	for k := range b.bindings {
		out = append(out, k)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return natural.Less(out[i].String(), out[j].String()) })
	return out
}

// Resolve implements Resolver.
func (b *Binder) Resolve(key Key) (any, bool, error) {
	return (&resolution{b: b}).Resolve(key)
}

// MustGet returns the value bound under key or panics.
// Useful in examples/tests where missing bindings should fail fast.
func (b *Binder) MustGet(key Key) any {
	v, ok, err := b.Resolve(key)
	if err != nil {
		panic(err)
	}
	if !ok {
		panic(UnboundError{Key: key})
	}
	return v
}

// resolution tracks the provider chain of one top-level Resolve call.
type resolution struct {
	b     *Binder
	stack []Key

	// binding this resolution waits for, guarded by Binder.mu
	waiting *binding
}

func (r *resolution) Resolve(key Key) (any, bool, error) {
	b := r.b
	b.mu.Lock()
	bd, found := b.bindings[key]
	if !found {
		b.mu.Unlock()
		return nil, false, nil
	}
	for !bd.done && bd.builder != nil {
		if bd.builder.waitsFor(r) {
			b.mu.Unlock()
			path := append(append([]Key{}, r.stack...), key)
			return nil, true, CycleError{Path: path}
		}
		ready := bd.ready
		r.waiting = bd
		b.mu.Unlock()
		<-ready
		b.mu.Lock()
		r.waiting = nil
	}
	if bd.done {
		v := bd.val
		b.mu.Unlock()
		return v, true, nil
	}
	bd.builder, bd.ready = r, make(chan struct{})
	b.mu.Unlock()

	v, err := r.build(key, bd)
	if err != nil {
		return nil, true, err
	}
	b.log.Debug("Binding constructed", zap.Stringer("key", key), zap.String("type", typeName(v)))
	return v, true, nil
}

// waitsFor reports whether r is, directly or through the bindings it waits
// for, blocked on other. Called with Binder.mu held.
func (r *resolution) waitsFor(other *resolution) bool {
	for cur := r; cur != nil; {
		if cur == other {
			return true
		}
		if cur.waiting == nil {
			return false
		}
		cur = cur.waiting.builder
	}
	return false
}

// build runs the provider of bd and publishes the outcome to waiters.
func (r *resolution) build(key Key, bd *binding) (v any, err error) {
	r.stack = append(r.stack, key)
	defer func() {
		r.stack = r.stack[:len(r.stack)-1]
		if rec := recover(); rec != nil {
			v, err = nil, fmt.Errorf("%w: %s: %v", ErrBindingPanic, key, rec)
		}

		r.b.mu.Lock()
		if err == nil {
			bd.val, bd.done = v, true
		}
		bd.builder = nil
		close(bd.ready)
		r.b.mu.Unlock()
	}()

	v, err = bd.provider(r)
	if err != nil {
		var cyc CycleError
		if errors.As(err, &cyc) {
			return nil, err
		}
		return nil, ProviderError{Key: key, Err: err}
	}
	if v == nil || !reflect.TypeOf(v).AssignableTo(key.Type()) {
		return nil, WrongTypeError{Key: key, Got: typeName(v)}
	}
	return v, nil
}

// ResolveAs resolves key from r and asserts the result to T.
func ResolveAs[T any](r Resolver, key Key) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilResolver
	}
	v, ok, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, UnboundError{Key: key}
	}
	t, ok := v.(T)
	if !ok {
		return zero, WrongTypeError{Key: key, Got: typeName(v)}
	}
	return t, nil
}

// Get resolves the unqualified binding of T.
func Get[T any](r Resolver) (T, error) { return ResolveAs[T](r, KeyOf[T]()) }

// GetQualified resolves the binding of T qualified by Q.
func GetQualified[T any, Q Qualifier](r Resolver) (T, error) {
	return ResolveAs[T](r, QualifiedKey[T, Q]())
}

// Bind binds v as the unqualified T.
func Bind[T any](b *Binder, v T) error { return b.BindInstance(KeyOf[T](), v) }

// BindQualified binds v as T qualified by Q.
func BindQualified[T any, Q Qualifier](b *Binder, v T) error {
	return b.BindInstance(QualifiedKey[T, Q](), v)
}

// Provide binds a lazy provider for the unqualified T.
func Provide[T any](b *Binder, fn func(Resolver) (T, error)) error {
	if fn == nil {
		return ErrNilProvider
	}
	return b.BindProvider(KeyOf[T](), func(r Resolver) (any, error) { return fn(r) })
}

// ProvideQualified binds a lazy provider for T qualified by Q.
func ProvideQualified[T any, Q Qualifier](b *Binder, fn func(Resolver) (T, error)) error {
	if fn == nil {
		return ErrNilProvider
	}
	return b.BindProvider(QualifiedKey[T, Q](), func(r Resolver) (any, error) { return fn(r) })
}

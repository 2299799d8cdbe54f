package di

import "reflect"

// Qualified wraps a T so the type system carries its qualifier Q.
//
// Use it as a parameter type to request the (T, Q) binding, or as the return
// type of a provider method to bind under (T, Q):
//
//	func (m Module) ProvideLogin(cfg Config) di.Qualified[Credentials, annotations.Login] {
//		return di.Qualify[annotations.Login](Credentials{User: cfg.User})
//	}
type Qualified[T any, Q Qualifier] struct {
	Val T
}

// Qualify wraps v with the qualifier Q.
func Qualify[Q Qualifier, T any](v T) Qualified[T, Q] {
	return Qualified[T, Q]{Val: v}
}

// Value returns the wrapped value.
func (q Qualified[T, Q]) Value() T { return q.Val }

// Key returns the (T, Q) binding key.
func (q Qualified[T, Q]) Key() Key { return QualifiedKey[T, Q]() }

// qualifiedValue is implemented by every Qualified instantiation; it lets the
// reflective injector detect the wrapper without knowing T and Q.
type qualifiedValue interface {
	Key() Key
	unwrap() any
	qualifierType() reflect.Type
}

func (q Qualified[T, Q]) unwrap() any { return q.Val }

func (q Qualified[T, Q]) qualifierType() reflect.Type { return typeOf[Q]() }

// wrapSetter is implemented by *Qualified so the injector can fill it.
type wrapSetter interface {
	set(v any) bool
}

func (q *Qualified[T, Q]) set(v any) bool {
	t, ok := v.(T)
	if !ok {
		return false
	}
	q.Val = t
	return true
}

var qualifiedIface = reflect.TypeOf((*qualifiedValue)(nil)).Elem()

// asQualified reports whether typ is a Qualified instantiation and returns its
// key and qualifier type.
func asQualified(typ reflect.Type) (Key, reflect.Type, bool) {
	if typ.Kind() != reflect.Struct || !typ.Implements(qualifiedIface) {
		return Key{}, nil, false
	}
	qv := reflect.Zero(typ).Interface().(qualifiedValue)
	return qv.Key(), qv.qualifierType(), true
}

// wrapQualified builds a reflect.Value of the Qualified type typ holding v.
func wrapQualified(typ reflect.Type, v any) (reflect.Value, bool) {
	ptr := reflect.New(typ)
	if !ptr.Interface().(wrapSetter).set(v) {
		return reflect.Value{}, false
	}
	return ptr.Elem(), true
}

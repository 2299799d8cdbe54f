package di

import "reflect"

// Key identifies a binding: the requested type plus an optional qualifier type.
//
// Keys are comparable and can be used as map keys. The zero Key is invalid.
type Key struct {
	typ  reflect.Type
	qual reflect.Type
}

// KeyOf returns the unqualified key for T.
func KeyOf[T any]() Key {
	return Key{typ: typeOf[T]()}
}

// QualifiedKey returns the key for T qualified by Q.
func QualifiedKey[T any, Q Qualifier]() Key {
	return Key{typ: typeOf[T](), qual: typeOf[Q]()}
}

// KeyFor builds a key from reflect types. qual may be nil.
func KeyFor(typ, qual reflect.Type) Key {
	return Key{typ: typ, qual: qual}
}

// typeOf works for interface types too, where reflect.TypeOf of a zero value is nil.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Type returns the bound type.
func (k Key) Type() reflect.Type { return k.typ }

// Qualifier returns the qualifier type or nil.
func (k Key) Qualifier() reflect.Type { return k.qual }

// IsQualified reports whether the key carries a qualifier.
func (k Key) IsQualified() bool { return k.qual != nil }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.typ == nil }

// QualifierName returns the declared name of the qualifier, falling back to
// its Go type name when undeclared, and "" for unqualified keys.
func (k Key) QualifierName() string {
	if k.qual == nil {
		return ""
	}
	if d, ok := declarationOfType(k.qual); ok {
		return d.Name
	}
	return k.qual.String()
}

// String renders "pkg.Type" or "pkg.Type@login".
func (k Key) String() string {
	if k.typ == nil {
		return "<invalid>"
	}
	if k.qual == nil {
		return k.typ.String()
	}
	return k.typ.String() + "@" + k.QualifierName()
}

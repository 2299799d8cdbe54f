package di

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// TagName is the struct tag read by Inspect and InjectFields.
//
//	type Session struct {
//		Creds Credentials `inject:"login"` // qualified
//		Clock Clock       `inject:""`      // unqualified
//	}
const TagName = "inject"

// ProviderPrefix marks module methods installed by Install.
const ProviderPrefix = "Provide"

var (
	// ErrNotStructPointer is returned when InjectFields gets anything but a non-nil *struct.
	ErrNotStructPointer = errors.New("di: target must be a non-nil pointer to struct")

	// ErrNotFunc is returned when Invoke gets a non-function.
	ErrNotFunc = errors.New("di: invoke target must be a function")

	// ErrNilModule is returned when Install gets a nil module.
	ErrNilModule = errors.New("di: nil module")
)

// UnexportedFieldError is returned for tagged fields that cannot be set.
type UnexportedFieldError struct{ Site string }

// Error implements the error interface.
func (e UnexportedFieldError) Error() string {
	return "di: injection field " + e.Site + " is unexported"
}

// InvalidProviderError is returned for Provide* methods with unsupported signatures.
type InvalidProviderError struct {
	Site   string
	Reason string
}

// Error implements the error interface.
func (e InvalidProviderError) Error() string {
	return "di: invalid provider " + e.Site + ": " + e.Reason
}

// Site is one injection point found by Inspect.
type Site struct {
	Kind  Target
	Owner string
	Name  string
	Index int
	Key   Key
}

// String renders "field Session.Creds <- login.Credentials@login".
func (s Site) String() string {
	return s.Kind.String() + " " + s.Owner + "." + s.Name + " <- " + s.Key.String()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Inspect lists the injection sites of a struct value, pointer or reflect.Type.
//
// Every problem found is reported, not only the first one.
func Inspect(v any) ([]Site, error) {
	typ, ok := v.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(v)
	}
	if typ == nil {
		return nil, ErrNotStructPointer
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, ErrNotStructPointer
	}
	return inspectStruct(typ)
}

func inspectStruct(typ reflect.Type) ([]Site, error) {
	var (
		sites []Site
		errs  error
	)
	owner := typ.String()

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		site := owner + "." + f.Name

		// marker embedded in the type declaration itself
		if mt, ok := embeddedMarker(f); ok {
			if _, err := qualifierFor(mt, TargetType, owner); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}

		key, qual, isQualified := asQualified(f.Type)
		tag, tagged := f.Tag.Lookup(TagName)
		if !isQualified && !tagged {
			continue
		}
		if !f.IsExported() {
			errs = multierr.Append(errs, UnexportedFieldError{Site: site})
			continue
		}

		switch {
		case isQualified:
			if _, err := qualifierFor(qual, TargetField, site); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if tagged && tag != "" {
				errs = multierr.Append(errs, errors.New("di: field "+site+" is Qualified and tagged "+strconv.Quote(tag)))
				continue
			}
		case tag == "":
			key = KeyFor(f.Type, nil)
		default:
			name, _, _ := strings.Cut(tag, ",")
			d, ok := Lookup(name)
			if !ok {
				errs = multierr.Append(errs, UnknownQualifierError{Name: name, Site: site})
				continue
			}
			if err := CheckTarget(d, TargetField, site); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			key = KeyFor(f.Type, d.Type)
		}

		sites = append(sites, Site{Kind: TargetField, Owner: owner, Name: f.Name, Index: i, Key: key})
	}
	return sites, errs
}

// embeddedMarker reports whether f embeds a qualifier, by value or pointer.
// Undeclared qualifiers count only when shaped like a marker (no fields).
func embeddedMarker(f reflect.StructField) (reflect.Type, bool) {
	if !f.Anonymous {
		return nil, false
	}
	typ := f.Type
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, false
	}
	if !typ.Implements(qualifierIface) && !reflect.PointerTo(typ).Implements(qualifierIface) {
		return nil, false
	}
	if _, declared := declarationOfType(typ); declared {
		return typ, true
	}
	return typ, typ.NumField() == 0
}

// InjectFields resolves every field site of target from r and assigns it.
// target must be a non-nil pointer to a struct.
func InjectFields(r Resolver, target any) error {
	if r == nil {
		return ErrNilResolver
	}
	rv := reflect.ValueOf(target)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPointer
	}
	sites, err := Inspect(rv.Type())
	if err != nil {
		return err
	}

	elem := rv.Elem()
	for _, s := range sites {
		field := elem.Field(s.Index)
		v, err := resolveValue(r, s.Key, field.Type())
		if err != nil {
			return err
		}
		field.Set(v)
	}
	return nil
}

// resolveValue resolves key and converts it to want, wrapping into Qualified when
// want is a Qualified type.
func resolveValue(r Resolver, key Key, want reflect.Type) (reflect.Value, error) {
	raw, ok, err := r.Resolve(key)
	if err != nil {
		return reflect.Value{}, err
	}
	if !ok {
		return reflect.Value{}, UnboundError{Key: key}
	}
	if _, _, isQualified := asQualified(want); isQualified {
		v, ok := wrapQualified(want, raw)
		if !ok {
			return reflect.Value{}, WrongTypeError{Key: key, Got: typeName(raw)}
		}
		return v, nil
	}
	if raw == nil || !reflect.TypeOf(raw).AssignableTo(want) {
		return reflect.Value{}, WrongTypeError{Key: key, Got: typeName(raw)}
	}
	return reflect.ValueOf(raw), nil
}

// paramKeys computes the binding key of every parameter of fn.
func paramKeys(fn reflect.Type, owner string, skip int) ([]Key, error) {
	var errs error
	keys := make([]Key, 0, fn.NumIn())
	for i := skip; i < fn.NumIn(); i++ {
		pt := fn.In(i)
		site := owner + "#" + strconv.Itoa(i-skip)
		key, qual, isQualified := asQualified(pt)
		if !isQualified {
			keys = append(keys, KeyFor(pt, nil))
			continue
		}
		if _, err := qualifierFor(qual, TargetParameter, site); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, errs
}

func callWith(r Resolver, fn reflect.Value, keys []Key, skip int, recv ...reflect.Value) ([]reflect.Value, error) {
	ft := fn.Type()
	args := make([]reflect.Value, 0, len(keys)+len(recv))
	args = append(args, recv...)
	for i, k := range keys {
		v, err := resolveValue(r, k, ft.In(i+skip))
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out := fn.Call(args)

	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return out[:n-1], e
		}
		return out[:n-1], nil
	}
	return out, nil
}

// Invoke calls fn with every parameter resolved from r.
//
// Parameters of type Qualified[T, Q] are resolved from the (T, Q) binding.
// A trailing error result is returned as the error and stripped from results.
func Invoke(r Resolver, fn any) ([]reflect.Value, error) {
	if r == nil {
		return nil, ErrNilResolver
	}
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, ErrNotFunc
	}
	keys, err := paramKeys(fv.Type(), fv.Type().String(), 0)
	if err != nil {
		return nil, err
	}
	return callWith(r, fv, keys, 0)
}

// Install binds every exported Provide* method of module on b.
//
// The returned type selects the key: Qualified[T, Q] binds (T, Q), anything
// else binds the unqualified type. Providers return T or (T, error), and their
// parameters are resolved like Invoke's. Providers run lazily.
func Install(b *Binder, module any) error {
	if module == nil {
		return ErrNilModule
	}
	mv := reflect.ValueOf(module)
	mt := mv.Type()
	owner := mt.String()

	var errs error
	for i := 0; i < mt.NumMethod(); i++ {
		m := mt.Method(i)
		if !strings.HasPrefix(m.Name, ProviderPrefix) {
			continue
		}
		site := owner + "." + m.Name
		if err := installMethod(b, mv, m, site); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func installMethod(b *Binder, recv reflect.Value, m reflect.Method, site string) error {
	ft := m.Type
	switch {
	case ft.NumOut() == 0 || ft.NumOut() > 2:
		return InvalidProviderError{Site: site, Reason: "must return T or (T, error)"}
	case ft.NumOut() == 2 && ft.Out(1) != errorType:
		return InvalidProviderError{Site: site, Reason: "second result must be error"}
	case ft.Out(0) == errorType:
		return InvalidProviderError{Site: site, Reason: "first result must not be error"}
	}

	out := ft.Out(0)
	key := KeyFor(out, nil)
	wrapped := false
	if qk, qual, ok := asQualified(out); ok {
		if _, err := qualifierFor(qual, TargetMethod, site); err != nil {
			return err
		}
		key, wrapped = qk, true
	}

	// method value types include the receiver at In(0)
	keys, err := paramKeys(ft, site, 1)
	if err != nil {
		return err
	}

	return b.BindProvider(key, func(r Resolver) (any, error) {
		res, err := callWith(r, m.Func, keys, 1, recv)
		if err != nil {
			return nil, err
		}
		v := res[0].Interface()
		if wrapped {
			v = v.(qualifiedValue).unwrap()
		}
		return v, nil
	})
}

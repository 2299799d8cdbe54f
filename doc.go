// Package odi is explicit dependency injection for Go with qualifiers.
//
// A qualifier tells two bindings of the same type apart. The module ships one,
// annotations.Login, which marks the binding used for a user's login:
//
//	type Client struct {
//		Creds   Credentials `inject:"login"` // the login binding
//		Service Credentials `inject:""`      // the default binding
//	}
//
// Layout:
//   - di: keys, qualifier declarations, the Binder, reflective field, parameter
//     and provider-method injection, and the Service dependency bag
//   - annotations: the Login qualifier
//   - cmd/odigen: generates reflection-free Wire<Struct> and RegisterProviders
//     functions from inject tags and //odi: directives
//   - examples/login: a runnable composition root
//
// Wiring stays explicit: bindings are declared in one place (usually main) and
// a qualifier can only be attached where it was declared valid.
package odi

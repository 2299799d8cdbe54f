// Command odigen generates explicit wiring code for qualified injection sites.
//
// It reads a package directory and emits plain Go that resolves every
// injection site through di.Resolver, so no reflection happens at run time.
//
// Injection sites
//
// Fields are tagged with the qualifier name, or with an empty tag for the
// unqualified binding:
//
//	type Client struct {
//		Creds Credentials `inject:"login"`
//		HTTP  *http.Client `inject:""`
//	}
//
// Providers are package-level functions annotated with directives. A
// qualifier on odi:provide qualifies the produced binding; odi:param
// qualifies one parameter:
//
//	//odi:provide login
//	//odi:param base=service
//	func NewLoginCredentials(base Credentials, cfg Config) (Credentials, error)
//
// Qualifiers may only be attached where they were declared valid. The
// builtin "login" qualifier (annotations.Login) is valid on fields,
// parameters and provider functions; a directive naming it in a type's doc
// comment is rejected:
//
//	//odi:login
//	type Session struct{} // error: di: qualifier "login" cannot annotate type Session
//
// Output
//
// For each struct with tagged fields:
//
//	func Wire<Struct>(r di.Resolver, dst *<Struct>) error
//
// and, when the package has providers:
//
//	func RegisterProviders(b *di.Binder) error
//
// Configuration
//
// Extra qualifiers are declared in a YAML file passed with -config:
//
//	qualifiers:
//	  - name: service
//	    type: Service
//	    import: example.com/app/annotations
//	    targets: [field, parameter, method]
//
// Typical go:generate usage
//
//	//go:generate go run github.com/mccandless/odi/cmd/odigen generate -dir . -out odi.gen.go
package main

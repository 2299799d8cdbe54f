// Package annotations holds the qualifier markers shared across wiring code.
package annotations

import "github.com/mccandless/odi/di"

// Login qualifies the binding used for a user's login, as opposed to other
// bindings of the same type (a service account, say).
//
// It carries no data and is valid on fields, parameters and provider methods:
//
//	type Client struct {
//		Creds Credentials `inject:"login"`
//	}
//
//	func Connect(c di.Qualified[Credentials, annotations.Login]) *Conn
//
//	func (Module) ProvideLogin() di.Qualified[Credentials, annotations.Login]
type Login struct{}

// QualifierName implements di.Qualifier.
func (Login) QualifierName() string { return "login" }

func init() {
	di.MustDeclare[Login](di.TargetField, di.TargetParameter, di.TargetMethod)
}

// Package di provides qualified bindings and small, explicit wiring helpers for Go.
//
// A qualifier is an empty marker type that, together with a requested type,
// forms the binding Key. It lets a composition root keep several bindings of
// the same type apart (a service account and a user login, both Credentials).
//
// The package supports three ways to consume a qualified binding:
//
//   - Field: `inject:"login"` struct tags, or fields of type Qualified[T, Q],
//     filled by InjectFields (or by code generated with cmd/odigen).
//   - Parameter: Qualified[T, Q] parameters of functions passed to Invoke.
//   - Method: Provide* methods returning Qualified[T, Q], installed with Install.
//
// Qualifiers are declared once with the targets they may annotate:
//
//	func init() { di.MustDeclare[Login](di.TargetField, di.TargetParameter, di.TargetMethod) }
//
// Attaching a qualifier elsewhere (embedding it in a type declaration, say)
// is reported as InvalidTargetError when the site is inspected.
//
// Binder is the binding table: instances and lazy singleton providers keyed by
// (type, qualifier). Service[T] keeps the explicit, injector-based wiring style
// with a dependency bag for introspection.
//
// Quick guidance
//
// Use Binder + InjectFields/Invoke/Install when you want:
//   - one place that owns every binding
//   - qualified lookups that fail with UnboundError when a binding is missing
//
// Use Service[T] + Injecting/FromResolver when you want:
//   - explicit field assignment in the composition root
//   - dependency introspection (what was injected?) via Deps
//
// Import
//
//	"github.com/mccandless/odi/di"
package di

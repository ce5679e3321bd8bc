// Package query treats an external query-expression DSL as an opaque
// callable producing a string value. Node actions that need a computed
// value (e.g. "the current release tag") take a Query instead of
// hard-coding the computation, so the DSL can be swapped without
// touching dispatch logic.
package query

import "github.com/christophe-duc/fleetctl/pkg/fleeterr"

// Query is an opaque, deferred computation. Evaluate runs it against ctx
// (whatever the DSL needs — typically an Env, passed as interface{} to
// keep this package free of a dependency on pkg/node).
type Query interface {
	Evaluate(ctx interface{}) (string, error)
}

// Func adapts a plain function to Query.
type Func func(ctx interface{}) (string, error)

// Evaluate calls f, wrapping any error as a QueryException.
func (f Func) Evaluate(ctx interface{}) (string, error) {
	value, err := f(ctx)
	if err != nil {
		return "", fleeterr.NewQueryException(err)
	}
	return value, nil
}

// Const returns a Query that always evaluates to value, useful as a
// default or in tests.
func Const(value string) Query {
	return Func(func(interface{}) (string, error) { return value, nil })
}

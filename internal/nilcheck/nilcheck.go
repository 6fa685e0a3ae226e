// Package nilcheck guards constructor dependencies against nil values,
// including typed nils hidden behind non-nil interface headers.
package nilcheck

import "reflect"

var nillableKinds = map[reflect.Kind]bool{
	reflect.Chan:      true,
	reflect.Func:      true,
	reflect.Interface: true,
	reflect.Map:       true,
	reflect.Pointer:   true,
	reflect.Slice:     true,
}

// Interface reports whether value is nil. A typed nil stored in an
// interface compares unequal to untyped nil, so the underlying value is
// inspected through reflection.
func Interface(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)

	return nillableKinds[v.Kind()] && v.IsNil()
}

// Require returns err when value is nil, letting constructors validate a
// dependency in one line.
func Require(value any, err error) error {
	if Interface(value) {
		return err
	}

	return nil
}

package core

import "dhtcode-go/errcode"

// As[T] asserts a payload to the concrete value type T. A *T is accepted
// and dereferenced. A nil payload is treated as the zero value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	switch t := v.(type) {
	case nil:
		return zero, ""
	case T:
		return t, ""
	case *T:
		if t == nil {
			return zero, ""
		}
		return *t, ""
	}
	return zero, errcode.InvalidPayload
}

// Package ptr builds the optional fields of registry patches.
package ptr

// Of returns a pointer to a copy of v.
func Of[T any](v T) *T { return &v }

// NonZero is Of for set values and nil for the zero value, leaving the patched field untouched.
func NonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}

	return &v
}

package utils

// Ptr returns a pointer to a copy of v. Handy for constructing literals
// that need an address (optional fields parsed straight off the wire).
func Ptr[T any](v T) *T {
	return &v
}

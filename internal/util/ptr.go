package util

// Ptr returns a pointer to the given value, for optional request fields.
func Ptr[T any](v T) *T {
	return &v
}

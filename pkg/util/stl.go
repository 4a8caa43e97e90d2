package util

// CopyTo returns a new slice with the elements of src.
func CopyTo[T any](src []T) []T {
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}

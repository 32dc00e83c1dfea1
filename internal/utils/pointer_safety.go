// Package utils holds small generic helpers.
package utils

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// Preview returns at most n leading bytes of s followed by an ellipsis when
// truncated. Used to log secrets without writing them out in full.
func Preview(s string, n int) string {
	if n <= 0 {
		return "..."
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

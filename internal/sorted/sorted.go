// Package sorted holds the binary search shared by the location and page
// indices.
package sorted

import "slices"

// LocationOf returns the index at which item belongs in the sorted slice
// items. For equal elements it is the index of the first of them.
func LocationOf[T any](item T, items []T, cmp func(a, b T) int) int {
	i, _ := slices.BinarySearchFunc(items, item, cmp)
	return i
}

// IndexOf returns the index of the first element equal to item, or -1.
func IndexOf[T any](item T, items []T, cmp func(a, b T) int) int {
	if i, ok := slices.BinarySearchFunc(items, item, cmp); ok {
		return i
	}
	return -1
}

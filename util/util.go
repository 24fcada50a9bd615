package util

// Unpack assigns slice elements to the given targets in order, Python-style.
// A short slice leaves trailing targets untouched; extra elements are
// dropped. Adjusted from https://stackoverflow.com/a/19832661
func Unpack[T any](toUnpack []T, unpackInto ...*T) {
	n := len(toUnpack)
	if len(unpackInto) < n {
		n = len(unpackInto)
	}
	for i := 0; i < n; i++ {
		*unpackInto[i] = toUnpack[i]
	}
}

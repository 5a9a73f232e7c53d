package extensions

import (
	"math"
	"testing"
)

func AssertAreEqual[T comparable](t *testing.T, name string, expected T, actual T) {
	t.Helper()
	if expected != actual {
		t.Fatalf("value mismatch for %s, expected %v, got %v", name, expected, actual)
	}
}

// AssertInDelta treats two NaN values as equal
func AssertInDelta(t *testing.T, name string, expected, actual, delta float64) {
	t.Helper()
	if math.IsNaN(expected) && math.IsNaN(actual) {
		return
	}
	if math.IsNaN(expected) != math.IsNaN(actual) || math.Abs(expected-actual) > delta {
		t.Fatalf("value mismatch for %s, expected %v, got %v (delta %v)", name, expected, actual, delta)
	}
}

func AssertIsNaN(t *testing.T, name string, actual float64) {
	t.Helper()
	if !math.IsNaN(actual) {
		t.Fatalf("value mismatch for %s, expected NaN, got %v", name, actual)
	}
}

func AssertSliceEqual[T comparable](t *testing.T, name string, expected, actual []T) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Fatalf("length mismatch for %s, expected %v, got %v", name, expected, actual)
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Fatalf("value mismatch for %s at %d, expected %v, got %v", name, i, expected, actual)
		}
	}
}

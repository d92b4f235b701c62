package assert

import "fmt"

// Panics with the formatted message when the condition does not hold.
// Reserved for invariants whose violation is a programming error.
func True(condition bool, template string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assertion failed: "+template, args...))
	}
}

// Package errorf builds formatted errors. E and D both return plain
// fmt.Errorf values: the two names only mark at the call site whether the
// condition is unexpected or benign, and the returned errors carry no
// severity that a caller further up the stack could inspect.
// Grounded on the teacher's orly.dev/pkg/utils/errorf package, absent from
// the retrieval pack but exercised pervasively by its call sites.
package errorf

import "fmt"

// E builds an error representing an unexpected failure.
func E(format string, args ...any) error { return fmt.Errorf(format, args...) }

// D builds an error representing an expected/benign condition (e.g.
// context cancellation) worth returning but not alarming about.
func D(format string, args ...any) error { return fmt.Errorf(format, args...) }

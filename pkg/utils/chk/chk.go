// Package chk implements the check-and-log idiom used throughout nostrkit:
// `if err = f(); chk.E(err) { return err }` logs non-nil errors at the call
// site and reports whether err was non-nil, collapsing the usual
// if-err-log-return triplet into one line. Grounded on the teacher's
// orly.dev/pkg/utils/chk package, absent from the retrieval pack but
// exercised pervasively by its call sites.
package chk

import "nostrkit.dev/pkg/utils/log"

// E reports err at Error level and returns true if err is non-nil.
func E(err error) bool {
	if err != nil {
		log.E.F("%v", err)
		return true
	}
	return false
}

// W reports err at Warn level and returns true if err is non-nil.
func W(err error) bool {
	if err != nil {
		log.W.F("%v", err)
		return true
	}
	return false
}

// T reports err at Trace level and returns true if err is non-nil. Used at
// call sites where the error is expected often enough (context
// cancellation, closed connections) that Error-level noise is unwanted.
func T(err error) bool {
	if err != nil {
		log.T.F("%v", err)
		return true
	}
	return false
}

// D reports err at Debug level and returns true if err is non-nil.
func D(err error) bool {
	if err != nil {
		log.D.F("%v", err)
		return true
	}
	return false
}

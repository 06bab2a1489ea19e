// Package util contains misc internal utilities shared across this
// module, carried over from the teacher repo's own util package.
package util

import "time"

// SecsToDuration converts floating point seconds to a time.Duration, the
// shape a YAML config file naturally expresses an interval in.
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

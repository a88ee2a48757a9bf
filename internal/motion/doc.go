// Package motion turns raw accelerometer readings into the signals the
// alarm engine consumes: a bounded rolling window of magnitude samples,
// snooze/dismiss gesture detection with debouncing, presence ("is the user
// in bed") and significant-movement checks.
//
// The sensor driver itself is out of scope; anything that can produce a
// magnitude scalar per poll satisfies the Sensor interface.
package motion

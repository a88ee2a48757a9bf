// Package audio owns ringtone playback for the alarm engine.
//
// The engine only sees the Coordinator: start a ring with a named volume
// ramp, start a low-volume night cue, stop with a smoothstep fade-out, and
// an asynchronous end-of-track notification. Decoding is out of scope; the
// exec-backed Player shells out to whatever the host plays audio with.
package audio

package audio

import (
	"time"
)

// Ramp shapes the playback gain over the lifetime of a ring:
// a gentle linear climb with a steeper second segment past the knee,
// so the alarm starts quiet and insists more over time.
type Ramp struct {
	// Slope is the initial gain increase per second.
	Slope float64
	// Knee is when the second segment kicks in.
	Knee time.Duration
	// KneeSlope is the additional gain increase per second past the knee.
	KneeSlope float64
}

// Gain returns the playback gain in [0, 1] at the given time since ring start.
func (r Ramp) Gain(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	seconds := elapsed.Seconds()

	gain := r.Slope * seconds
	if past := seconds - r.Knee.Seconds(); past > 0 {
		gain += past * r.KneeSlope
	}

	return min(gain, 1)
}

// Smoothstep maps x in [0, 1] onto the classic 3x²-2x³ easing curve,
// used to fade audio out without popping the speakers.
func Smoothstep(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	default:
		return x * x * (3 - 2*x)
	}
}

package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Fade returns the gain at step i of an n-step ramp from `from` to `to`
// following the smoothstep curve.
func Fade(from, to float64, i, n int) float64 {
	if n <= 0 {
		return to
	}
	return from + (to-from)*Smoothstep(float64(i)/float64(n))
}

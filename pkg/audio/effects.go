package audio

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// biquad is a second-order IIR section with coefficients normalised by a0.
type biquad struct {
	src beep.Streamer

	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 [2]float64
	y1, y2 [2]float64
}

func newBiquad(src beep.Streamer, b0, b1, b2, a0, a1, a2 float64) *biquad {
	return &biquad{src: src, b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// lowPass builds an RBJ cookbook low-pass section.
func lowPass(src beep.Streamer, sampleRate, cutoff, q float64) *biquad {
	sn, cs := math.Sincos(2 * math.Pi * cutoff / sampleRate)
	alpha := sn / (2 * q)
	return newBiquad(src, (1-cs)/2, 1-cs, (1-cs)/2, 1+alpha, -2*cs, 1-alpha)
}

// highPass builds an RBJ cookbook high-pass section.
func highPass(src beep.Streamer, sampleRate, cutoff, q float64) *biquad {
	sn, cs := math.Sincos(2 * math.Pi * cutoff / sampleRate)
	alpha := sn / (2 * q)
	return newBiquad(src, (1+cs)/2, -(1 + cs), (1+cs)/2, 1+alpha, -2*cs, 1-alpha)
}

func (f *biquad) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.src.Stream(samples)
	for i := 0; i < n; i++ {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (f *biquad) Err() error {
	return f.src.Err()
}

// NewSpeechFilter band-limits narration to the voice range, which keeps it
// intelligible on phone speakers and in street noise.
func NewSpeechFilter(s beep.Streamer, sampleRate, lowCutoff, highCutoff float64) beep.Streamer {
	// Q=0.707 is a Butterworth response (flat passband).
	return lowPass(highPass(s, sampleRate, lowCutoff, 0.707), sampleRate, highCutoff, 0.707)
}

// volumeToPower maps linear volume 0..1 onto beep's base-2 exponent.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}

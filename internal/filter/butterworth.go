package filter

import (
	"fmt"
	"math"

	"firestige.xyz/eeglink/internal/core"
)

// biquad is a normalized second-order section in transposed direct form II.
// First-order sections leave b2 and a2 at zero.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

type sectionState struct {
	z1, z2 float64
}

func (q *biquad) step(s *sectionState, x float64) float64 {
	y := q.b0*x + s.z1
	s.z1 = q.b1*x - q.a1*y + s.z2
	s.z2 = q.b2*x - q.a2*y
	return y
}

// butterworthSections designs an order-n Butterworth low-pass (highPass=false)
// or high-pass with corner fc, by bilinear transform at sample rate fs.
func butterworthSections(n int, fs, fc float64, highPass bool) []biquad {
	w0 := 2 * math.Pi * fc / fs
	cosw, sinw := math.Cos(w0), math.Sin(w0)

	sections := make([]biquad, 0, (n+1)/2)
	for k := 0; k < n/2; k++ {
		q := 1 / (2 * math.Sin(math.Pi*float64(2*k+1)/float64(2*n)))
		alpha := sinw / (2 * q)
		a0 := 1 + alpha
		var b0, b1 float64
		if highPass {
			b0, b1 = (1+cosw)/2, -(1 + cosw)
		} else {
			b0, b1 = (1-cosw)/2, 1-cosw
		}
		sections = append(sections, biquad{
			b0: b0 / a0, b1: b1 / a0, b2: b0 / a0,
			a1: -2 * cosw / a0, a2: (1 - alpha) / a0,
		})
	}

	if n%2 == 1 {
		k := math.Tan(w0 / 2)
		a1 := (k - 1) / (k + 1)
		if highPass {
			sections = append(sections, biquad{b0: 1 / (1 + k), b1: -1 / (1 + k), a1: a1})
		} else {
			sections = append(sections, biquad{b0: k / (1 + k), b1: k / (1 + k), a1: a1})
		}
	}
	return sections
}

// bandPass is an order-n Butterworth high-pass at center-width cascaded with
// an order-n Butterworth low-pass at center+width. An edge at or below 0 Hz,
// or at or above Nyquist, drops the corresponding half.
type bandPass struct {
	order    int
	channels int
	sections []biquad
	state    [][]sectionState // [channel][section]
}

func newBandPass(order, channels int) *bandPass {
	return &bandPass{order: order, channels: channels}
}

func (b *bandPass) Setup(rate, center, width float64) error {
	lo, hi := center-width, center+width
	nyquist := rate / 2
	if rate <= 0 || width <= 0 || lo >= nyquist {
		return fmt.Errorf("%w: center %g, width %g at %g Hz", core.ErrInvalidBand, center, width, rate)
	}

	var sections []biquad
	if lo > 0 {
		sections = append(sections, butterworthSections(b.order, rate, lo, true)...)
	}
	if hi < nyquist {
		sections = append(sections, butterworthSections(b.order, rate, hi, false)...)
	}
	b.sections = sections

	b.state = make([][]sectionState, b.channels)
	for i := range b.state {
		b.state[i] = make([]sectionState, len(sections))
	}
	return nil
}

func (b *bandPass) Process(block [][]float32) {
	for ch, samples := range block {
		if ch >= len(b.state) {
			return
		}
		st := b.state[ch]
		for i, x := range samples {
			y := float64(x)
			for s := range b.sections {
				y = b.sections[s].step(&st[s], y)
			}
			samples[i] = float32(y)
		}
	}
}

package detector

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var (
	// ErrCornerAboveNyquist is returned when the corner frequency is not
	// below the Nyquist frequency of the trace.
	ErrCornerAboveNyquist = errors.New("corner frequency above Nyquist")

	// ErrInvalidFilter is returned for a non-positive corner frequency or
	// filter order.
	ErrInvalidFilter = errors.New("invalid filter parameters")
)

// Section is one second-order IIR stage with a[0] normalized to 1.
type Section struct {
	B [3]float64
	A [3]float64
}

// ButterworthHighpass designs a digital Butterworth highpass of the given
// order as cascaded second-order sections. The analog prototype is mapped
// with a prewarped bilinear transform, so the -3 dB point lands on freq.
func ButterworthHighpass(freq, rate float64, corners int) ([]Section, error) {
	if corners < 1 || freq <= 0 || math.IsNaN(freq) {
		return nil, fmt.Errorf("%w: freq %v, corners %d", ErrInvalidFilter, freq, corners)
	}
	wn := freq / (0.5 * rate)
	if wn >= 1 {
		return nil, fmt.Errorf("%w: %v Hz at %v Hz sampling", ErrCornerAboveNyquist, freq, rate)
	}

	const fs2 = 4.0 // 2 * fs with fs normalized to 2
	warped := fs2 * math.Tan(math.Pi*wn/2)

	n := corners
	sections := make([]Section, 0, (n+1)/2)
	gain := complex(1, 0)

	// Prototype poles -exp(i*pi*m/(2n)) for m = -n+1, -n+3, ..., n-1. Each
	// negative m has its conjugate at -m; m == 0 is the real pole of an odd
	// order.
	for m := -n + 1; m <= 0; m += 2 {
		analog := -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*n)))
		hp := complex(warped, 0) / analog
		digital := (fs2 + hp) / (fs2 - hp)

		if m == 0 {
			gain *= fs2 / (fs2 - hp)
			sections = append(sections, Section{
				B: [3]float64{1, -1, 0},
				A: [3]float64{1, -real(digital), 0},
			})
			continue
		}

		gain *= (fs2 * fs2) / ((fs2 - hp) * (fs2 - cmplx.Conj(hp)))
		sections = append(sections, Section{
			B: [3]float64{1, -2, 1},
			A: [3]float64{1, -2 * real(digital), real(digital)*real(digital) + imag(digital)*imag(digital)},
		})
	}

	k := real(gain)
	for i := range sections[0].B {
		sections[0].B[i] *= k
	}
	return sections, nil
}

// Filter runs x through the cascade from rest, in place.
func Filter(sections []Section, x []float64) {
	for _, s := range sections {
		var z0, z1 float64
		for i, v := range x {
			y := s.B[0]*v + z0
			z0 = s.B[1]*v - s.A[1]*y + z1
			z1 = s.B[2]*v - s.A[2]*y
			x[i] = y
		}
	}
}

// ZeroPhase filters forward then backward and returns a new slice. The
// magnitude response is squared and the phase cancels.
func ZeroPhase(sections []Section, samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)

	Filter(sections, out)
	reverse(out)
	Filter(sections, out)
	reverse(out)
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

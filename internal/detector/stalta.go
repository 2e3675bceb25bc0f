package detector

// ClassicSTALTA computes the short-term over long-term average energy ratio.
// Entries before index nlta-1, where the long window first fills, are zero.
// A zero long-term energy yields zero rather than dividing. A trace shorter
// than nlta produces an all-zero function.
func ClassicSTALTA(x []float64, nsta, nlta int) []float64 {
	cf := make([]float64, len(x))
	if nsta < 1 || nlta < nsta || len(x) < nlta {
		return cf
	}

	var sta, lta float64
	for i := 0; i < nsta; i++ {
		sta += x[i] * x[i]
	}
	lta = sta
	for i := nsta; i < nlta; i++ {
		e := x[i] * x[i]
		lta += e
		sta += e - x[i-nsta]*x[i-nsta]
	}

	frac := float64(nsta) / float64(nlta)
	if lta > 0 {
		cf[nlta-1] = sta / lta / frac
	}
	for i := nlta; i < len(x); i++ {
		e := x[i] * x[i]
		sta += e - x[i-nsta]*x[i-nsta]
		lta += e - x[i-nlta]*x[i-nlta]
		if lta <= 0 {
			continue
		}
		cf[i] = sta / lta / frac
	}
	return cf
}

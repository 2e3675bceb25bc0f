package detector

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

func sine(freq, rate, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestButterworthHighpassDesign(t *testing.T) {
	tests := []struct {
		corners      int
		wantSections int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
	}

	for _, tt := range tests {
		sos, err := ButterworthHighpass(5, 100, tt.corners)
		if err != nil {
			t.Fatalf("corners %d: %v", tt.corners, err)
		}
		if len(sos) != tt.wantSections {
			t.Errorf("corners %d: %d sections, want %d", tt.corners, len(sos), tt.wantSections)
		}

		// A highpass must pass Nyquist with unit gain and block DC.
		nyq, dc := 1.0, 1.0
		for _, s := range sos {
			nyq *= (s.B[0] - s.B[1] + s.B[2]) / (s.A[0] - s.A[1] + s.A[2])
			dc *= (s.B[0] + s.B[1] + s.B[2]) / (s.A[0] + s.A[1] + s.A[2])
		}
		if math.Abs(nyq-1) > 1e-9 {
			t.Errorf("corners %d: gain at Nyquist = %v, want 1", tt.corners, nyq)
		}
		if math.Abs(dc) > 1e-12 {
			t.Errorf("corners %d: gain at DC = %v, want 0", tt.corners, dc)
		}
	}
}

func TestButterworthHighpassInvalid(t *testing.T) {
	if _, err := ButterworthHighpass(60, 100, 2); !errors.Is(err, ErrCornerAboveNyquist) {
		t.Errorf("above Nyquist: err = %v", err)
	}
	if _, err := ButterworthHighpass(5, 100, 0); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("zero corners: err = %v", err)
	}
	if _, err := ButterworthHighpass(0, 100, 2); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("zero freq: err = %v", err)
	}
}

func TestZeroPhasePassband(t *testing.T) {
	sos, err := ButterworthHighpass(5, 100, 2)
	if err != nil {
		t.Fatal(err)
	}

	in := sine(20, 100, 1, 2000)
	out := ZeroPhase(sos, in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}

	ratio := rms(out[500:1500]) / rms(in[500:1500])
	if ratio < 0.9 {
		t.Errorf("20 Hz passband ratio = %.3f, want > 0.9", ratio)
	}

	// Zero phase: the filtered sine stays aligned with the input.
	var corr float64
	for i := 500; i < 1500; i++ {
		corr += in[i] * out[i]
	}
	if corr <= 0 {
		t.Errorf("output is not in phase with input (correlation %v)", corr)
	}
}

func TestZeroPhaseStopband(t *testing.T) {
	sos, err := ButterworthHighpass(5, 100, 2)
	if err != nil {
		t.Fatal(err)
	}

	in := sine(0.5, 100, 1, 2000)
	out := ZeroPhase(sos, in)

	ratio := rms(out[500:1500]) / rms(in[500:1500])
	if ratio > 0.05 {
		t.Errorf("0.5 Hz stopband ratio = %.4f, want < 0.05", ratio)
	}
}

func TestZeroPhaseDoesNotMutateInput(t *testing.T) {
	sos, _ := ButterworthHighpass(5, 100, 2)
	in := sine(1, 100, 1, 300)
	orig := append([]float64(nil), in...)

	ZeroPhase(sos, in)
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestClassicSTALTA(t *testing.T) {
	x := make([]float64, 50)
	for i := range x {
		x[i] = 1
	}

	cf := ClassicSTALTA(x, 5, 20)
	for i := 0; i < 19; i++ {
		if cf[i] != 0 {
			t.Fatalf("cf[%d] = %v before the long window filled", i, cf[i])
		}
	}
	for i := 19; i < len(cf); i++ {
		if math.Abs(cf[i]-1) > 1e-9 {
			t.Fatalf("cf[%d] = %v, want 1 for constant energy", i, cf[i])
		}
	}
}

func TestClassicSTALTAEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		x          []float64
		nsta, nlta int
	}{
		{"shorter than long window", make([]float64, 10), 2, 20},
		{"zero short window", make([]float64, 100), 0, 20},
		{"silent trace", make([]float64, 100), 5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf := ClassicSTALTA(tt.x, tt.nsta, tt.nlta)
			if len(cf) != len(tt.x) {
				t.Fatalf("len = %d", len(cf))
			}
			for i, v := range cf {
				if v != 0 || math.IsNaN(v) {
					t.Fatalf("cf[%d] = %v, want 0", i, v)
				}
			}
		})
	}
}

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		cf   []float64
		want []Trigger
	}{
		{
			name: "two intervals, second left open",
			cf:   []float64{0, 0, 9, 9, 3, 0.2, 0, 10, 10},
			want: []Trigger{{2, 5}, {7, 8}},
		},
		{
			name: "never above threshold",
			cf:   []float64{0, 1, 7.9, 8, 2},
			want: nil,
		},
		{
			name: "open at first sample",
			cf:   []float64{12, 0.1},
			want: []Trigger{{0, 1}},
		},
		{
			name: "onset on final sample",
			cf:   []float64{0, 0, 9},
			want: []Trigger{{2, 2}},
		},
		{
			name: "empty",
			cf:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.cf, 8.0, 0.5)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("trigger %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDetectQuietTrace(t *testing.T) {
	samples := sine(2, 100, 1, 1000)
	triggers, err := Detect(samples, 100, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(triggers) != 0 {
		t.Errorf("triggers = %v, want none", triggers)
	}
}

func TestDetectBurst(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	samples := make([]float64, 4000)
	for i := range samples {
		samples[i] = rng.NormFloat64()
	}
	for i := 2000; i < 2150; i++ {
		samples[i] += 200 * math.Sin(2*math.Pi*20*float64(i-2000)/100)
	}

	triggers, err := Detect(samples, 100, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(triggers) != 1 {
		t.Fatalf("triggers = %v, want exactly one", triggers)
	}

	tr := triggers[0]
	if tr.Onset < 1990 || tr.Onset > 2050 {
		t.Errorf("onset = %d, want near 2000", tr.Onset)
	}
	if tr.Offset <= 2150 || tr.Offset >= 2400 {
		t.Errorf("offset = %d, want shortly after the burst ends", tr.Offset)
	}
}

func TestDetectOnsetsOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]float64, 8000)
	for i := range samples {
		samples[i] = rng.NormFloat64()
	}
	for _, at := range []int{1500, 4000, 6500} {
		for i := at; i < at+100; i++ {
			samples[i] += 300 * math.Sin(2*math.Pi*15*float64(i-at)/100)
		}
	}

	triggers, err := Detect(samples, 100, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(triggers) == 0 {
		t.Fatal("expected triggers")
	}
	for i := 1; i < len(triggers); i++ {
		if triggers[i].Onset < triggers[i-1].Onset {
			t.Errorf("onsets out of order: %v", triggers)
		}
	}
}

func TestDetectEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		rate    float64
		wantErr error
	}{
		{"empty", nil, 100, nil},
		{"single sample", []float64{3}, 100, nil},
		{"zero rate", sine(1, 100, 1, 100), 0, ErrInvalidSamplingRate},
		{"negative rate", sine(1, 100, 1, 100), -1, ErrInvalidSamplingRate},
		{"NaN rate", sine(1, 100, 1, 100), math.NaN(), ErrInvalidSamplingRate},
		{"empty with zero rate", nil, 0, ErrInvalidSamplingRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggers, err := Detect(tt.samples, tt.rate, DefaultConfig())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(triggers) != 0 {
				t.Errorf("triggers = %v, want none", triggers)
			}
		})
	}
}

func TestWindowSamples(t *testing.T) {
	tests := []struct {
		window time.Duration
		rate   float64
		want   int
	}{
		{time.Second, 100, 100},
		{10 * time.Second, 100, 1000},
		{time.Second, 40.5, 41},
		{time.Second, 0.4, 0},
	}
	for _, tt := range tests {
		if got := WindowSamples(tt.window, tt.rate); got != tt.want {
			t.Errorf("WindowSamples(%v, %v) = %d, want %d", tt.window, tt.rate, got, tt.want)
		}
	}
}

func TestTriggerFormatting(t *testing.T) {
	triggers := []Trigger{{2, 5}, {7, 8}}
	s := FormatTriggers(triggers)
	if s != "[2 5], [7 8]" {
		t.Errorf("FormatTriggers = %q", s)
	}

	back, err := ParseTriggers(s)
	if err != nil {
		t.Fatalf("ParseTriggers: %v", err)
	}
	if len(back) != 2 || back[0] != triggers[0] || back[1] != triggers[1] {
		t.Errorf("ParseTriggers = %v", back)
	}

	if FormatTriggers(nil) != "" {
		t.Error("no triggers should render empty")
	}
	if got, err := ParseTriggers(""); err != nil || got != nil {
		t.Errorf("ParseTriggers(\"\") = %v, %v", got, err)
	}
	if _, err := ParseTriggers("[1 x]"); err == nil {
		t.Error("expected parse error")
	}
}

func TestSampleTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := SampleTime(start, 100, 250); !got.Equal(start.Add(2500 * time.Millisecond)) {
		t.Errorf("SampleTime = %v", got)
	}
}

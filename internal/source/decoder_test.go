package source

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleTrace() *Trace {
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = math.Sin(float64(i) / 10)
	}
	return &Trace{
		Network:      "TX",
		Station:      "PB28",
		Channel:      "HHZ",
		SamplingRate: 100,
		StartTime:    time.Date(2024, 2, 29, 13, 45, 7, 250_000_000, time.UTC),
		Samples:      samples,
	}
}

func TestDecodeSACRoundTrip(t *testing.T) {
	in := sampleTrace()
	out, err := DecodeSAC(EncodeSAC(in))
	if err != nil {
		t.Fatalf("DecodeSAC failed: %v", err)
	}

	if out.Network != "TX" || out.Station != "PB28" || out.Channel != "HHZ" {
		t.Errorf("identity = %s", out.ID())
	}
	if out.Location != "" {
		t.Errorf("location = %q, want empty", out.Location)
	}
	if math.Abs(out.SamplingRate-100) > 1e-3 {
		t.Errorf("sampling rate = %v, want ~100", out.SamplingRate)
	}
	if !out.StartTime.Equal(in.StartTime) {
		t.Errorf("start = %v, want %v", out.StartTime, in.StartTime)
	}

	wantEnd := in.StartTime.Add(4990 * time.Millisecond)
	if d := out.EndTime.Sub(wantEnd); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("end = %v, want ~%v", out.EndTime, wantEnd)
	}

	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("len = %d, want %d", len(out.Samples), len(in.Samples))
	}
	for i := range in.Samples {
		if math.Abs(out.Samples[i]-in.Samples[i]) > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeSACSubMillisecondStart(t *testing.T) {
	in := sampleTrace()
	in.StartTime = time.Date(2024, 1, 1, 0, 0, 0, 123_456_000, time.UTC)

	out, err := DecodeSAC(EncodeSAC(in))
	if err != nil {
		t.Fatalf("DecodeSAC failed: %v", err)
	}
	if !out.StartTime.Equal(in.StartTime) {
		t.Errorf("start = %v, want %v", out.StartTime, in.StartTime)
	}
}

func TestDecodeSACBigEndian(t *testing.T) {
	le := EncodeSAC(sampleTrace())

	// Byte-swap every 4-byte word in the numeric header and the data.
	be := make([]byte, len(le))
	copy(be, le)
	swap := func(off int) {
		binary.BigEndian.PutUint32(be[off:], binary.LittleEndian.Uint32(le[off:]))
	}
	for off := 0; off < 440; off += 4 {
		swap(off)
	}
	for off := sacHeaderSize; off < len(le); off += 4 {
		swap(off)
	}

	out, err := DecodeSAC(be)
	if err != nil {
		t.Fatalf("DecodeSAC big-endian failed: %v", err)
	}
	if out.Station != "PB28" || len(out.Samples) != 500 {
		t.Errorf("got station %q with %d samples", out.Station, len(out.Samples))
	}
}

func TestDecodeSACZeroDelta(t *testing.T) {
	in := sampleTrace()
	in.SamplingRate = 0

	out, err := DecodeSAC(EncodeSAC(in))
	if err != nil {
		t.Fatalf("DecodeSAC failed: %v", err)
	}
	if out.SamplingRate != 0 {
		t.Errorf("sampling rate = %v, want 0", out.SamplingRate)
	}
}

func TestDecodeSACInvalid(t *testing.T) {
	valid := EncodeSAC(sampleTrace())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:100]},
		{"truncated data", valid[:len(valid)-8]},
		{"garbage", make([]byte, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSAC(tt.data); !errors.Is(err, ErrInvalidSAC) {
				t.Errorf("error = %v, want ErrInvalidSAC", err)
			}
		})
	}
}

func TestReadSACFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TX.PB28..HHZ.M.2024.060.134507.SAC")
	if err := os.WriteFile(path, EncodeSAC(sampleTrace()), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tr, err := ReadSACFile(path)
	if err != nil {
		t.Fatalf("ReadSACFile failed: %v", err)
	}
	if tr.Station != "PB28" {
		t.Errorf("station = %q", tr.Station)
	}

	if _, err := ReadSACFile(filepath.Join(t.TempDir(), "missing.SAC")); err == nil {
		t.Error("expected error for missing file")
	}
}

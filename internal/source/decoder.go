package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// ErrInvalidSAC is returned for input that is not a SAC binary time series.
var ErrInvalidSAC = errors.New("invalid SAC file")

// SAC binary layout: 70 float32 words, 40 int32 words, then 192 bytes of
// character fields. Samples follow as npts float32 values.
const (
	sacHeaderSize = 632

	sacDelta  = 0
	sacB      = 5
	sacE      = 6
	sacNZYear = 70
	sacNZJDay = 71
	sacNZHour = 72
	sacNZMin  = 73
	sacNZSec  = 74
	sacNZMsec = 75
	sacNVHdr  = 76
	sacNPts   = 79
	sacIFType = 85
	sacLEven  = 105

	sacKStnm   = 440
	sacKHole   = 464
	sacKCmpnm  = 600
	sacKNetwk  = 608
	sacUndef   = -12345
	sacITime   = 1
	sacVersion = 6
)

// Trace is one decoded waveform. It is not modified after decoding.
type Trace struct {
	Network      string
	Station      string
	Location     string
	Channel      string
	SamplingRate float64
	StartTime    time.Time
	EndTime      time.Time
	Samples      []float64
}

// ID returns the SEED-style identifier NET.STA.LOC.CHA.
func (t *Trace) ID() string {
	return strings.Join([]string{t.Network, t.Station, t.Location, t.Channel}, ".")
}

// ReadSACFile decodes the SAC file at path.
func ReadSACFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	tr, err := DecodeSAC(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tr, nil
}

// DecodeSAC parses a SAC binary file in either byte order. A non-positive
// sample interval decodes to a zero sampling rate rather than an error.
func DecodeSAC(data []byte) (*Trace, error) {
	if len(data) < sacHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidSAC, len(data))
	}

	order, err := detectByteOrder(data)
	if err != nil {
		return nil, err
	}
	h := sacHeader{data: data[:sacHeaderSize], order: order}

	if ev := h.i32(sacLEven); ev == 0 {
		return nil, fmt.Errorf("%w: unevenly sampled data is not supported", ErrInvalidSAC)
	}
	if ft := h.i32(sacIFType); ft != sacITime && ft != sacUndef {
		return nil, fmt.Errorf("%w: file type %d is not a time series", ErrInvalidSAC, ft)
	}

	npts := int(h.i32(sacNPts))
	if npts < 0 {
		return nil, fmt.Errorf("%w: negative npts %d", ErrInvalidSAC, npts)
	}
	if need := sacHeaderSize + 4*npts; len(data) < need {
		return nil, fmt.Errorf("%w: npts %d needs %d bytes, have %d", ErrInvalidSAC, npts, need, len(data))
	}

	samples := make([]float64, npts)
	body := data[sacHeaderSize:]
	for i := range samples {
		samples[i] = float64(math.Float32frombits(order.Uint32(body[4*i:])))
	}

	delta := float64(h.f32(sacDelta))
	var samplingRate float64
	if delta > 0 && !math.IsInf(delta, 0) && !math.IsNaN(delta) {
		samplingRate = 1 / delta
	}

	begin := float64(h.f32(sacB))
	if begin == sacUndef {
		begin = 0
	}
	start := h.referenceTime().Add(secondsToDuration(begin))
	end := start
	if npts > 1 && samplingRate > 0 {
		end = start.Add(secondsToDuration(float64(npts-1) * delta))
	}

	return &Trace{
		Network:      h.str(sacKNetwk, 8),
		Station:      h.str(sacKStnm, 8),
		Location:     h.str(sacKHole, 8),
		Channel:      h.str(sacKCmpnm, 8),
		SamplingRate: samplingRate,
		StartTime:    start,
		EndTime:      end,
		Samples:      samples,
	}, nil
}

// EncodeSAC writes t as a little-endian SAC version 6 file.
func EncodeSAC(t *Trace) []byte {
	order := binary.LittleEndian
	buf := make([]byte, sacHeaderSize+4*len(t.Samples))

	undef := int32(sacUndef)
	for i := 0; i < 70; i++ {
		order.PutUint32(buf[4*i:], math.Float32bits(float32(undef)))
	}
	for i := 70; i < 110; i++ {
		order.PutUint32(buf[4*i:], uint32(undef))
	}
	for off := sacKStnm; off < sacHeaderSize; off += 8 {
		copy(buf[off:off+8], "-12345  ")
	}
	copy(buf[sacKStnm+8:sacKStnm+24], "-12345          ")

	putFloat := func(word int, v float64) {
		order.PutUint32(buf[4*word:], math.Float32bits(float32(v)))
	}
	putInt := func(word int, v int) {
		order.PutUint32(buf[4*word:], uint32(int32(v)))
	}
	putStr := func(off int, s string) {
		field := buf[off : off+8]
		for i := range field {
			field[i] = ' '
		}
		copy(field, s)
	}

	delta := 0.0
	if t.SamplingRate > 0 {
		delta = 1 / t.SamplingRate
	}
	start := t.StartTime.UTC()
	ref := start.Truncate(time.Millisecond)

	putFloat(sacDelta, delta)
	putFloat(sacB, start.Sub(ref).Seconds())
	putFloat(sacE, start.Sub(ref).Seconds()+float64(max(len(t.Samples)-1, 0))*delta)
	putInt(sacNZYear, ref.Year())
	putInt(sacNZJDay, ref.YearDay())
	putInt(sacNZHour, ref.Hour())
	putInt(sacNZMin, ref.Minute())
	putInt(sacNZSec, ref.Second())
	putInt(sacNZMsec, ref.Nanosecond()/int(time.Millisecond))
	putInt(sacNVHdr, sacVersion)
	putInt(sacNPts, len(t.Samples))
	putInt(sacIFType, sacITime)
	putInt(sacLEven, 1)
	putStr(sacKStnm, t.Station)
	putStr(sacKHole, t.Location)
	putStr(sacKCmpnm, t.Channel)
	putStr(sacKNetwk, t.Network)

	for i, v := range t.Samples {
		order.PutUint32(buf[sacHeaderSize+4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

func detectByteOrder(data []byte) (binary.ByteOrder, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		v := int32(order.Uint32(data[4*sacNVHdr:]))
		if v >= 1 && v <= 7 {
			return order, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognized header version", ErrInvalidSAC)
}

type sacHeader struct {
	data  []byte
	order binary.ByteOrder
}

func (h sacHeader) f32(word int) float32 {
	return math.Float32frombits(h.order.Uint32(h.data[4*word:]))
}

func (h sacHeader) i32(word int) int32 {
	return int32(h.order.Uint32(h.data[4*word:]))
}

func (h sacHeader) str(off, n int) string {
	s := strings.TrimRight(string(h.data[off:off+n]), " \x00")
	if s == "-12345" {
		return ""
	}
	return strings.TrimSpace(s)
}

// referenceTime assembles nzyear/nzjday/nzhour/nzmin/nzsec/nzmsec. An unset
// reference time falls back to the Unix epoch.
func (h sacHeader) referenceTime() time.Time {
	year := h.i32(sacNZYear)
	jday := h.i32(sacNZJDay)
	if year == sacUndef || jday == sacUndef {
		return time.Unix(0, 0).UTC()
	}

	field := func(word int) int {
		if v := h.i32(word); v != sacUndef {
			return int(v)
		}
		return 0
	}
	return time.Date(int(year), time.January, 1,
		field(sacNZHour), field(sacNZMin), field(sacNZSec),
		field(sacNZMsec)*int(time.Millisecond), time.UTC).
		AddDate(0, 0, int(jday)-1)
}

// secondsToDuration rounds to the microsecond, the resolution of ledger
// timestamps.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

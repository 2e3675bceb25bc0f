package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
)

// ValidationResult contains the outcome of trace validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// Error joins the validation errors.
func (r ValidationResult) Error() string {
	return strings.Join(r.Errors, "; ")
}

// ValidateTrace performs sanity checks on a decoded trace before detection:
// - every sample is finite
// - the end time does not precede the start time
// - the station code matches the requested station (warning only)
// - the sample count agrees with the time span (warning only)
//
// The sampling rate is left to the detector, which rejects it explicitly.
func ValidateTrace(tr *source.Trace, station string) ValidationResult {
	result := ValidationResult{Passed: true}

	for i, v := range tr.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			result.Errors = append(result.Errors, fmt.Sprintf("non-finite sample at index %d", i))
			result.Passed = false
			break
		}
	}

	if tr.EndTime.Before(tr.StartTime) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("end time %s before start time %s",
				tr.EndTime.Format(time.RFC3339Nano), tr.StartTime.Format(time.RFC3339Nano)))
		result.Passed = false
	}

	switch {
	case tr.Station == "":
		result.Warnings = append(result.Warnings, "trace has no station code")
	case station != "" && !strings.EqualFold(tr.Station, station):
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("station %s does not match requested %s", tr.Station, station))
	}

	if tr.SamplingRate > 0 && len(tr.Samples) > 1 {
		span := tr.EndTime.Sub(tr.StartTime).Seconds()
		expected := int(math.Round(span*tr.SamplingRate)) + 1
		if expected != len(tr.Samples) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("sample count %d does not match span (expected %d)", len(tr.Samples), expected))
		}
	}

	return result
}

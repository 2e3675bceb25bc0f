package detector

import (
	"fmt"
	"strings"
)

// Trigger is a detected interval in sample-index space.
type Trigger struct {
	Onset  int
	Offset int
}

// String renders the trigger as "[onset offset]".
func (t Trigger) String() string {
	return fmt.Sprintf("[%d %d]", t.Onset, t.Offset)
}

// Scan walks cf once. An interval opens at the first index above on and
// closes at the first later index below off; one still open at the end
// closes at the last index. Intervals are returned in onset order and are
// never merged.
func Scan(cf []float64, on, off float64) []Trigger {
	var (
		triggers []Trigger
		active   bool
		onset    int
	)
	for i, v := range cf {
		switch {
		case !active && v > on:
			active = true
			onset = i
		case active && i > onset && v < off:
			triggers = append(triggers, Trigger{Onset: onset, Offset: i})
			active = false
		}
	}
	if active {
		triggers = append(triggers, Trigger{Onset: onset, Offset: len(cf) - 1})
	}
	return triggers
}

// FormatTriggers joins triggers as "[a b], [c d]". No triggers renders as
// the empty string.
func FormatTriggers(triggers []Trigger) string {
	parts := make([]string, len(triggers))
	for i, t := range triggers {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ParseTriggers reverses FormatTriggers.
func ParseTriggers(s string) ([]Trigger, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var triggers []Trigger
	for _, part := range strings.Split(s, ",") {
		var t Trigger
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "[%d %d]", &t.Onset, &t.Offset); err != nil {
			return nil, fmt.Errorf("parse trigger %q: %w", part, err)
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

// Package threshold evaluates raw Ganglia metric values against Nagios
// threshold ranges:
//
//	10      alert if value < 0 or > 10
//	10:     alert if value < 10
//	~:10    alert if value > 10
//	10:20   alert if value < 10 or > 20
//	@10:20  alert if 10 <= value <= 20
package threshold

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotNumeric means a metric value cannot be compared against a range.
var ErrNotNumeric = errors.New("value is not numeric")

// Range is one parsed Nagios range.
type Range struct {
	Start    float64
	End      float64 // +Inf when open-ended
	Inside   bool    // '@' prefix: alert when inside the range
	StartInf bool    // '~' start: no lower bound
}

// Parse parses a Nagios range string.
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, errors.New("threshold must not be empty")
	}

	var r Range
	if rest, ok := strings.CutPrefix(s, "@"); ok {
		r.Inside = true
		s = rest
	}

	startStr, endStr, hasColon := strings.Cut(s, ":")
	if !hasColon {
		end, err := parseBound(s)
		if err != nil {
			return Range{}, err
		}
		r.End = end
		return r, nil
	}

	switch startStr {
	case "~":
		r.StartInf = true
	case "":
	default:
		v, err := parseBound(startStr)
		if err != nil {
			return Range{}, err
		}
		r.Start = v
	}

	if endStr == "" {
		r.End = math.Inf(1)
	} else {
		v, err := parseBound(endStr)
		if err != nil {
			return Range{}, err
		}
		r.End = v
	}

	if !r.StartInf && r.Start > r.End {
		return Range{}, fmt.Errorf("start %s exceeds end %s", formatFloat(r.Start), formatFloat(r.End))
	}
	return r, nil
}

func parseBound(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid threshold value %q", s)
	}
	return v, nil
}

// Violated reports whether value should raise an alert.
func (r Range) Violated(value float64) bool {
	in := value <= r.End && (r.StartInf || value >= r.Start)
	return in == r.Inside
}

// String renders the range back in Nagios notation.
func (r Range) String() string {
	var b strings.Builder
	if r.Inside {
		b.WriteByte('@')
	}
	switch {
	case r.StartInf:
		b.WriteString("~:")
		if !math.IsInf(r.End, 1) {
			b.WriteString(formatFloat(r.End))
		}
	case math.IsInf(r.End, 1):
		b.WriteString(formatFloat(r.Start))
		b.WriteByte(':')
	case r.Start == 0 && !r.Inside:
		b.WriteString(formatFloat(r.End))
	default:
		b.WriteString(formatFloat(r.Start))
		b.WriteByte(':')
		b.WriteString(formatFloat(r.End))
	}
	return b.String()
}

// Level is the outcome of evaluating a value against a Pair.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

// Pair is an optional warning range and an optional critical range.
type Pair struct {
	Warning  *Range
	Critical *Range
}

// ParsePair parses warning and critical range strings; empty strings leave
// that side unset.
func ParsePair(warn, crit string) (Pair, error) {
	var p Pair
	if warn != "" {
		r, err := Parse(warn)
		if err != nil {
			return Pair{}, fmt.Errorf("invalid warning threshold %q: %w", warn, err)
		}
		p.Warning = &r
	}
	if crit != "" {
		r, err := Parse(crit)
		if err != nil {
			return Pair{}, fmt.Errorf("invalid critical threshold %q: %w", crit, err)
		}
		p.Critical = &r
	}
	return p, nil
}

// IsZero reports whether neither range is set.
func (p Pair) IsZero() bool {
	return p.Warning == nil && p.Critical == nil
}

// Check returns the level for value; critical wins over warning.
func (p Pair) Check(value float64) Level {
	if p.Critical != nil && p.Critical.Violated(value) {
		return LevelCritical
	}
	if p.Warning != nil && p.Warning.Violated(value) {
		return LevelWarning
	}
	return LevelOK
}

// Evaluate parses a raw metric value and checks it. Ganglia writes numbers
// with surrounding whitespace at times; that is trimmed before parsing.
func (p Pair) Evaluate(raw string) (float64, Level, error) {
	v, err := ParseValue(raw)
	if err != nil {
		return 0, LevelOK, err
	}
	return v, p.Check(v), nil
}

// ParseValue converts a raw metric value to a float.
func ParseValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	return v, nil
}

// Strings returns the Nagios notation of each side, empty when unset.
func (p Pair) Strings() (warn, crit string) {
	if p.Warning != nil {
		warn = p.Warning.String()
	}
	if p.Critical != nil {
		crit = p.Critical.String()
	}
	return warn, crit
}

// formatFloat drops the decimal point only for whole numbers a float64
// holds exactly, so large bounds are never squeezed through int64.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package output turns check outcomes into Nagios plugin output: the status
// line, optional long text and performance data, plus the process exit code.
package output

import (
	"fmt"
	"math"
	"strconv"

	nagios "github.com/atc0005/go-nagios"
)

// Prefix opens every status line this plugin prints.
const Prefix = "GANGLIA"

// PerfDatum is one Nagios performance data entry.
type PerfDatum struct {
	Label string
	Value float64
	UOM   string // %, B, s, c or empty
	Warn  string // Nagios range
	Crit  string // Nagios range
	Min   string
	Max   string
}

// Result is the outcome of one check run.
type Result struct {
	Status    Status
	CheckName string // SCAN, HOST
	Summary   string
	Details   string // long text, printed after the status line
	PerfData  []PerfDatum
}

// StatusLine returns "GANGLIA <CHECK> <STATUS> - <summary>".
func (r *Result) StatusLine() string {
	return fmt.Sprintf("%s %s %s - %s", Prefix, r.CheckName, r.Status, r.Summary)
}

// ApplyToPlugin copies the Result into a go-nagios Plugin, which prints it
// and exits from Plugin.ReturnCheckResults().
func (r *Result) ApplyToPlugin(p *nagios.Plugin) {
	p.ServiceOutput = r.StatusLine()

	switch r.Status {
	case OK:
		p.ExitStatusCode = nagios.StateOKExitCode
	case Warning:
		p.ExitStatusCode = nagios.StateWARNINGExitCode
	case Critical:
		p.ExitStatusCode = nagios.StateCRITICALExitCode
	default:
		p.ExitStatusCode = nagios.StateUNKNOWNExitCode
	}

	if r.Details != "" {
		p.LongServiceOutput = r.Details
	}

	for _, pd := range r.PerfData {
		// go-nagios validates labels itself; an entry it rejects is dropped
		// rather than failing the whole check.
		_ = p.AddPerfData(false, nagios.PerformanceData{
			Label:             pd.Label,
			Value:             formatValue(pd.Value),
			UnitOfMeasurement: pd.UOM,
			Warn:              pd.Warn,
			Crit:              pd.Crit,
			Min:               pd.Min,
			Max:               pd.Max,
		})
	}
}

// formatValue prints whole numbers that a float64 holds exactly without a
// decimal point and everything else with the shortest representation that
// round-trips.
func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package output

import (
	"fmt"

	"github.com/crimson-sun/clinote/internal/engine/report"
	"github.com/crimson-sun/clinote/internal/model"
)

// Verbosity controls how much of a record is serialized.
type Verbosity int

const (
	Minimal  Verbosity = iota // headline scores only
	Standard                  // scores and the summary report rows
	Full                      // everything, including per-class rows and artifact paths
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// ParseVerbosity converts "minimal", "standard" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("output: unknown verbosity %q", s)
	}
}

// FormatRecord returns a copy of the record with fields stripped according
// to verbosity. Stripped fields are omitted from JSON via omitempty.
func FormatRecord(rec model.ResultRecord, verbosity Verbosity) model.ResultRecord {
	switch verbosity {
	case Minimal:
		rec.Report = nil
		rec.ArtifactDir = ""
	case Standard:
		var summary []model.ReportRow
		for _, row := range rec.Report {
			switch row.Name {
			case report.RowAccuracy, report.RowMacro, report.RowWeighted:
				summary = append(summary, row)
			}
		}
		rec.Report = summary
		rec.ArtifactDir = ""
	}
	return rec
}

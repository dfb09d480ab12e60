package batch

import (
	"fmt"
	"io"
	"time"
)

// Stage names the pipeline step where a record failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageName     Stage = "name"
	StageRender   Stage = "render"
	StageWrite    Stage = "write"
)

// Failure records one record that produced no image.
type Failure struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Stage       Stage  `json:"stage"`
	Reason      string `json:"reason"`
}

// Output records one written image.
type Output struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Report summarizes a batch run. Failures and Outputs follow source order
// regardless of which worker finished first.
type Report struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Filter      string    `json:"filter"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Interrupted bool      `json:"interrupted,omitempty"`
	Failures    []Failure `json:"failures"`
	Outputs     []Output  `json:"outputs"`
}

// Failed returns the number of failed records.
func (r Report) Failed() int { return len(r.Failures) }

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary writes the human-readable run summary to w.
func (r Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %d records, %d processed, %d succeeded, %d failed",
		r.RunID, r.Total, r.Processed, r.Succeeded, r.Failed())
	if r.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", r.Skipped)
	}
	fmt.Fprintf(w, " (%s)\n", r.Duration().Round(time.Millisecond))
	if r.Interrupted {
		fmt.Fprintln(w, "Interrupted before all records were processed.")
	}
	if len(r.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "Failures:")
	for _, f := range r.Failures {
		who := f.Identity
		if f.DisplayName != "" && f.DisplayName != f.Identity {
			who = fmt.Sprintf("%s (%s)", f.Identity, f.DisplayName)
		}
		fmt.Fprintf(w, "  %s [%s]: %s\n", who, f.Stage, f.Reason)
	}
}

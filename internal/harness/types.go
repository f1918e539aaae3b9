package harness

import (
	"fmt"
	"strings"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
)

// StepTrace records what one scenario step did.
type StepTrace struct {
	Seq         int
	Kind        string // attempt kind, or "remote" for availability changes
	AttemptID   string
	Transitions []reconcile.State
	Code        reconcile.ErrorCode
	Touched     []int
	Local       itinerary.Snapshot
	Remote      itinerary.Snapshot
	Note        string // "up" or "down" for remote steps
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool
	Trace  []StepTrace
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Render formats the trace as stable text, one block per step. Snapshots are
// written in canonical JSON so equal states always render identically.
func (r *Result) Render(name string) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", name)

	for _, st := range r.Trace {
		if st.Kind == "remote" {
			fmt.Fprintf(&b, "%d remote %s\n", st.Seq, st.Note)
			continue
		}

		states := make([]string, len(st.Transitions))
		for i, s := range st.Transitions {
			states[i] = string(s)
		}
		fmt.Fprintf(&b, "%d %s %s %s", st.Seq, st.Kind, st.AttemptID, strings.Join(states, ">"))
		if len(st.Touched) > 0 {
			days := make([]string, len(st.Touched))
			for i, d := range st.Touched {
				days[i] = fmt.Sprint(d)
			}
			fmt.Fprintf(&b, " touched=%s", strings.Join(days, ","))
		}
		if st.Code != "" {
			fmt.Fprintf(&b, " code=%s", st.Code)
		}
		b.WriteByte('\n')

		local, err := itinerary.MarshalCanonical(st.Local)
		if err != nil {
			return nil, fmt.Errorf("step %d: local: %w", st.Seq, err)
		}
		remote, err := itinerary.MarshalCanonical(st.Remote)
		if err != nil {
			return nil, fmt.Errorf("step %d: remote: %w", st.Seq, err)
		}
		fmt.Fprintf(&b, "  local  %s\n", local)
		fmt.Fprintf(&b, "  remote %s\n", remote)
	}
	return []byte(b.String()), nil
}

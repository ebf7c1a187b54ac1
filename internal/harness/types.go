package harness

// CommitOutcome records what one commit step did.
type CommitOutcome struct {
	Step         int    `json:"step"`
	Table        string `json:"table,omitempty"`
	ExperimentID int64  `json:"experiment_id,omitempty"`
	RowID        int64  `json:"row_id,omitempty"`
	Code         string `json:"code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every commit matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Commits has one entry per commit step, in order.
	Commits []CommitOutcome `json:"commits"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// CSV is the export of the scenario's "export" experiment, if any.
	CSV []byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Commits: []CommitOutcome{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

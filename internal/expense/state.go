package expense

import (
	"github.com/zombor/expense-tracker/internal/scanning"
)

// State is a step of the receipt pipeline
type State string

const (
	StateStart             State = "start"
	StateProvisioned       State = "provisioned"
	StateModelSucceeded    State = "model_succeeded"
	StateModelsExhausted   State = "models_exhausted"
	StateParsedCandidate   State = "parsed_candidate"
	StateNoCandidate       State = "no_candidate"
	StateReconciled        State = "reconciled"
	StateCommitted         State = "committed"
	StateCommittedFallback State = "committed_fallback"
	StateRejected          State = "rejected"
)

// Terminal reports whether the pipeline stops in this state
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCommittedFallback || s == StateRejected
}

// Outcome is everything the pipeline learned while processing one receipt
type Outcome struct {
	State State
	Trail []State

	// Expense is the persisted record; nil when Rejected
	Expense *Expense

	// Candidate is the reconciled candidate of the primary write
	Candidate      *scanning.Candidate
	Reconciliation *scanning.Reconciliation
	Synthesized    bool

	Extraction   scanning.Extraction
	Provisioning ProvisionReport

	// Cause is the error or panic that sent the request to the last-resort write
	Cause error
	// CommitErr holds the store diagnostics of a failed primary write
	CommitErr *StoreError
	// FallbackErr is why the last-resort write failed
	FallbackErr      error
	FallbackPanicked bool

	Message string
}

func (o *Outcome) advance(state State) {
	o.State = state
	o.Trail = append(o.Trail, state)
}

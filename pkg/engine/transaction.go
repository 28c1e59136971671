package engine

import (
	"time"

	"github.com/arthur-debert/riceify/pkg/types"
)

// State is a step of the switch state machine.
type State string

const (
	StateIdle            State = "idle"
	StateCapturing       State = "capturing"
	StateCapturingBackup State = "capturing-backup"
	StateApplying        State = "applying"
	StateCommitting      State = "committing"
	StateDone            State = "done"
	StateRollingBack     State = "rolling-back"
	StateRolledBack      State = "rolled-back"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateRolledBack, StateFailed:
		return true
	}
	return false
}

// Kind is the operation a transaction performs.
type Kind string

const (
	KindSave    Kind = "save"
	KindApply   Kind = "apply"
	KindRestore Kind = "restore"
)

// Action is what happened to one file during a transaction.
type Action string

const (
	// ActionStored means the file's content was added to the object store.
	ActionStored Action = "stored"
	// ActionUnchanged means the content was already stored.
	ActionUnchanged Action = "unchanged"
	// ActionSkipped means the live file already matched the target.
	ActionSkipped Action = "skipped"
	ActionWritten Action = "written"
	ActionDeleted Action = "deleted"
	// ActionRestored means rollback put the pre-switch content back.
	ActionRestored Action = "restored"
	ActionFailed   Action = "failed"
)

// FileOutcome records the result for one file.
type FileOutcome struct {
	TransactionID string `json:"transaction_id" yaml:"transaction_id"`
	Path          string `json:"path" yaml:"path"`
	Action        Action `json:"action" yaml:"action"`
	Hash          string `json:"hash,omitempty" yaml:"hash,omitempty"`
	// Layer is the dependency layer the file was written in, or -1.
	Layer int   `json:"layer" yaml:"layer"`
	Err   error `json:"-" yaml:"-"`
}

// Transaction tracks one save, apply or restore from start to its terminal
// state. The engine owns it; once terminal it is archived as the last
// transaction and no longer changes.
type Transaction struct {
	ID     string
	Kind   Kind
	Target string
	// Version is the profile version saved or applied, 0 for restores.
	Version int
	State   State

	// Backup is the pre-switch capture, nil for saves and no-op switches.
	Backup *types.Profile

	Outcomes []FileOutcome

	StartedAt  time.Time
	FinishedAt time.Time

	CacheHits   int
	CacheMisses int

	Err error
}

// Count returns how many outcomes have action a.
func (t *Transaction) Count(a Action) int {
	n := 0
	for _, o := range t.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Duration returns how long the transaction ran.
func (t *Transaction) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

func (t *Transaction) clone() *Transaction {
	c := *t
	c.Outcomes = append([]FileOutcome(nil), t.Outcomes...)
	return &c
}

// Result is what Save, Apply and RestorePrevious return.
type Result struct {
	Transaction *Transaction
	// Profile is the version that was saved or made live.
	Profile *types.Profile
	// NoOp is set when nothing needed to change.
	NoOp bool
}

package store

import "time"

// ProgressKind enumerates the persisted resume states of an attempt.
type ProgressKind string

const (
	// ProgressFresh has no checkpoint and no restart markers.
	ProgressFresh ProgressKind = "fresh"

	// ProgressResuming resumes at ModuleID.
	ProgressResuming ProgressKind = "resuming"

	// ProgressRestartPending ignores server progress until the first module
	// of the new attempt completes. ModuleID is an optional checkpoint.
	ProgressRestartPending ProgressKind = "restart_pending"

	// ProgressAwaitingNewSession is ProgressRestartPending plus a one-shot
	// demand that the next session start for the first module is fresh.
	ProgressAwaitingNewSession ProgressKind = "awaiting_new_session"
)

// Progress is the locally persisted resume state. It replaces a checkpoint
// plus two independent restart flags; the constructors and transitions
// below are the only way to change it, so a one-shot new-session demand can
// never exist without the sticky restart marker.
type Progress struct {
	Kind     ProgressKind `json:"kind"`
	ModuleID int          `json:"module_id,omitempty"`

	// MarkedAt is when the restart markers were set.
	MarkedAt time.Time `json:"marked_at,omitempty"`
}

// Fresh returns the empty progress.
func Fresh() Progress {
	return Progress{Kind: ProgressFresh}
}

// Resuming returns progress pointing at moduleID.
func Resuming(moduleID int) Progress {
	if moduleID == 0 {
		return Fresh()
	}
	return Progress{Kind: ProgressResuming, ModuleID: moduleID}
}

// ForcedRestart sets both restart markers and drops the checkpoint.
func ForcedRestart(at time.Time) Progress {
	return Progress{Kind: ProgressAwaitingNewSession, MarkedAt: at}
}

// Valid reports whether p is a well-formed state.
func (p Progress) Valid() bool {
	switch p.Kind {
	case ProgressFresh:
		return p.ModuleID == 0
	case ProgressResuming:
		return p.ModuleID != 0
	case ProgressRestartPending:
		return true
	case ProgressAwaitingNewSession:
		return p.ModuleID == 0
	}
	return false
}

// Equal reports whether p and q are the same state. MarkedAt is compared
// as an instant, so a value read back from storage equals the original.
func (p Progress) Equal(q Progress) bool {
	return p.Kind == q.Kind && p.ModuleID == q.ModuleID && p.MarkedAt.Equal(q.MarkedAt)
}

// Checkpoint returns the module the user was last known to be on.
func (p Progress) Checkpoint() (int, bool) {
	switch p.Kind {
	case ProgressResuming, ProgressRestartPending:
		return p.ModuleID, p.ModuleID != 0
	}
	return 0, false
}

// ForceRestartFromBeginning reports the sticky "ignore server progress" marker.
func (p Progress) ForceRestartFromBeginning() bool {
	return p.Kind == ProgressRestartPending || p.Kind == ProgressAwaitingNewSession
}

// ForceNewSessionForModule1 reports the one-shot "next start must be fresh"
// marker.
func (p Progress) ForceNewSessionForModule1() bool {
	return p.Kind == ProgressAwaitingNewSession
}

// ConsumeNewSession clears the one-shot marker. used is true when the marker
// was set.
func (p Progress) ConsumeNewSession() (next Progress, used bool) {
	if p.Kind != ProgressAwaitingNewSession {
		return p, false
	}
	return Progress{Kind: ProgressRestartPending, MarkedAt: p.MarkedAt}, true
}

// WithCheckpoint records moduleID as the checkpoint, keeping the sticky
// marker. A pending one-shot demand has no checkpoint and is left unchanged.
func (p Progress) WithCheckpoint(moduleID int) Progress {
	switch p.Kind {
	case ProgressAwaitingNewSession:
		return p
	case ProgressRestartPending:
		return Progress{Kind: ProgressRestartPending, ModuleID: moduleID, MarkedAt: p.MarkedAt}
	}
	return Resuming(moduleID)
}

// WithoutCheckpoint drops the checkpoint, keeping any markers.
func (p Progress) WithoutCheckpoint() Progress {
	switch p.Kind {
	case ProgressResuming:
		return Fresh()
	case ProgressRestartPending:
		return Progress{Kind: ProgressRestartPending, MarkedAt: p.MarkedAt}
	}
	return p
}

// ClearForceRestart drops the sticky marker once the first module of the new
// attempt has completed. A pending one-shot demand is left unchanged.
func (p Progress) ClearForceRestart() Progress {
	if p.Kind != ProgressRestartPending {
		return p
	}
	return Resuming(p.ModuleID)
}

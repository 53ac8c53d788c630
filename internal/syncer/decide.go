package syncer

import (
	"github.com/kittclouds/leakr/internal/snapshot"
)

// Action is what a sync round should do next.
type Action int

const (
	// ActionNone means local and remote already agree, or there is no remote.
	ActionNone Action = iota
	// ActionImport means the single remote should replace the local store.
	ActionImport
	// ActionConflict means the user has to choose.
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionImport:
		return "import"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	// Remote is the snapshot to import when Action is ActionImport.
	Remote *snapshot.Info
	Reason string
}

// Decide compares the local snapshot (nil when nothing is persisted) with
// the remote candidates.
//
// More than one remote is always a conflict. A single remote is imported
// when there is no local snapshot, when it is newer by timestamp, or when
// the timestamps match and its iteration is at least the local one. An
// identical (owner, timestamp, iteration) tuple needs nothing. Anything else
// means local is ahead and the user decides.
func Decide(local *snapshot.Info, remotes []snapshot.Info) Decision {
	switch {
	case len(remotes) == 0:
		return Decision{Action: ActionNone, Reason: "no remote snapshot"}
	case len(remotes) > 1:
		return Decision{Action: ActionConflict, Reason: "several remote snapshots"}
	}

	remote := remotes[0]
	if local == nil {
		return Decision{Action: ActionImport, Remote: &remote, Reason: "no local snapshot"}
	}
	if snapshot.SameVersion(*local, remote) {
		return Decision{Action: ActionNone, Reason: "already in sync"}
	}
	if remote.Timestamp.After(local.Timestamp) {
		return Decision{Action: ActionImport, Remote: &remote, Reason: "remote is newer"}
	}
	if remote.Timestamp.Equal(local.Timestamp) && remote.Iteration >= local.Iteration {
		return Decision{Action: ActionImport, Remote: &remote, Reason: "remote has more iterations"}
	}
	return Decision{Action: ActionConflict, Reason: "local is ahead of remote"}
}

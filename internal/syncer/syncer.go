// Package syncer reconciles the local store with the snapshots kept by the
// storage service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kittclouds/leakr/internal/snapshot"
)

// State is the reconciler's position in the sync state machine.
type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateConflict  State = "conflict"
	StateResolved  State = "resolved"
	StateError     State = "error"
	StateImporting State = "importing"
)

var (
	// ErrInProgress is returned when a check or import is already running.
	ErrInProgress = errors.New("sync: already in progress")
	// ErrNoConflict is returned by conflict actions outside the conflict state.
	ErrNoConflict = errors.New("sync: no conflict to resolve")
	// ErrUnknownCandidate is returned when AcceptRemote gets a snapshot that
	// was not offered.
	ErrUnknownCandidate = errors.New("sync: snapshot is not a conflict candidate")
	// ErrNoOwner is returned when no owner UUID is configured.
	ErrNoOwner = errors.New("sync: no owner configured")
)

// Error wraps a failure during a sync step. The local store is never
// modified by a failed step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sync: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Remote lists and downloads snapshots.
type Remote interface {
	List(ctx context.Context, owner string) ([]snapshot.Info, error)
	Download(ctx context.Context, filename string) ([]byte, error)
}

// Local is the persisted store.
type Local interface {
	LocalInfo(ctx context.Context) (*snapshot.Info, error)
	ImportSnapshot(ctx context.Context, data []byte) error
}

// OwnerFunc returns the configured owner UUID.
type OwnerFunc func(ctx context.Context) (string, error)

// Status is a copy of the reconciler's state.
type Status struct {
	State     State           `json:"state"`
	Local     *snapshot.Info  `json:"local,omitempty"`
	Remotes   []snapshot.Info `json:"remotes,omitempty"`
	Imported  *snapshot.Info  `json:"imported,omitempty"`
	Message   string          `json:"message,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (s Status) clone() Status {
	out := s
	if s.Local != nil {
		l := *s.Local
		out.Local = &l
	}
	if s.Imported != nil {
		i := *s.Imported
		out.Imported = &i
	}
	out.Remotes = append([]snapshot.Info(nil), s.Remotes...)
	return out
}

// Options configures a Syncer.
type Options struct {
	// OnChange observes every state transition. It runs outside the lock
	// and must not block.
	OnChange func(Status)
	Now      func() time.Time
	Logger   *slog.Logger
}

// Syncer runs the sync state machine. One Syncer per store.
type Syncer struct {
	remote Remote
	local  Local
	owner  OwnerFunc

	onChange func(Status)
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Syncer in the idle state.
func New(remote Remote, local Local, owner OwnerFunc, opts Options) *Syncer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Syncer{
		remote:   remote,
		local:    local,
		owner:    owner,
		onChange: opts.OnChange,
		now:      opts.Now,
		log:      opts.Logger,
		status:   Status{State: StateIdle, UpdatedAt: opts.Now()},
	}
}

// State returns a copy of the current status.
func (s *Syncer) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Sync checks the remote snapshots and either does nothing, imports the
// single newer remote, or stops in the conflict state.
func (s *Syncer) Sync(ctx context.Context) (Status, error) {
	if err := s.begin(StateChecking, nil); err != nil {
		return s.State(), err
	}

	owner, err := s.owner(ctx)
	if err == nil {
		if _, perr := uuid.Parse(owner); perr != nil || owner == uuid.Nil.String() {
			err = ErrNoOwner
		}
	}
	if err != nil {
		return s.fail("read owner", err)
	}

	remotes, err := s.remote.List(ctx, owner)
	if err != nil {
		return s.fail("list remote snapshots", err)
	}
	local, err := s.local.LocalInfo(ctx)
	if err != nil {
		return s.fail("read local snapshot", err)
	}

	d := Decide(local, remotes)
	s.log.Info("sync decision", "action", d.Action.String(), "reason", d.Reason,
		"remotes", len(remotes), "has_local", local != nil)

	switch d.Action {
	case ActionImport:
		s.update(func(st *Status) {
			st.State = StateImporting
			st.Local = local
			st.Remotes = remotes
		})
		return s.importRemote(ctx, *d.Remote)
	case ActionConflict:
		return s.update(func(st *Status) {
			st.State = StateConflict
			st.Local = local
			st.Remotes = remotes
			st.Message = d.Reason
		}), nil
	default:
		return s.update(func(st *Status) {
			st.State = StateResolved
			st.Local = local
			st.Remotes = remotes
			st.Message = d.Reason
		}), nil
	}
}

// KeepLocal resolves a conflict in favor of the local store. Nothing is
// changed; the next flush uploads the local state.
func (s *Syncer) KeepLocal() (Status, error) {
	s.mu.Lock()
	if s.status.State != StateConflict {
		snap := s.status.clone()
		s.mu.Unlock()
		return snap, ErrNoConflict
	}
	s.status.State = StateResolved
	s.status.Message = "kept local"
	s.status.UpdatedAt = s.now()
	snap := s.status.clone()
	s.mu.Unlock()

	s.log.Info("conflict resolved, keeping local")
	s.notify(snap)
	return snap, nil
}

// AcceptRemote resolves a conflict by importing candidate, which must be
// one of the offered remotes.
func (s *Syncer) AcceptRemote(ctx context.Context, candidate snapshot.Info) (Status, error) {
	err := s.begin(StateImporting, func(st *Status) error {
		if st.State != StateConflict {
			return ErrNoConflict
		}
		for _, r := range st.Remotes {
			if r.Filename == candidate.Filename {
				return nil
			}
		}
		return ErrUnknownCandidate
	})
	if err != nil {
		return s.State(), err
	}
	return s.importRemote(ctx, candidate)
}

func (s *Syncer) importRemote(ctx context.Context, info snapshot.Info) (Status, error) {
	data, err := s.remote.Download(ctx, info.Filename)
	if err != nil {
		return s.fail("download "+info.Filename, err)
	}
	if err := s.local.ImportSnapshot(ctx, data); err != nil {
		return s.fail("import "+info.Filename, err)
	}
	s.log.Info("remote snapshot imported", "filename", info.Filename, "iteration", info.Iteration)
	return s.update(func(st *Status) {
		st.State = StateResolved
		st.Imported = &info
		st.Local = &info
		st.Message = "imported " + info.Filename
	}), nil
}

// begin moves to a busy state unless one is already running. check may
// veto the transition.
func (s *Syncer) begin(next State, check func(*Status) error) error {
	s.mu.Lock()
	if s.status.State == StateChecking || s.status.State == StateImporting {
		s.mu.Unlock()
		return ErrInProgress
	}
	if check != nil {
		if err := check(&s.status); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.status.State = next
	s.status.Message = ""
	s.status.Imported = nil
	if next == StateChecking {
		s.status.Local = nil
		s.status.Remotes = nil
	}
	s.status.UpdatedAt = s.now()
	snap := s.status.clone()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

func (s *Syncer) update(fn func(*Status)) Status {
	s.mu.Lock()
	fn(&s.status)
	s.status.UpdatedAt = s.now()
	snap := s.status.clone()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

func (s *Syncer) fail(op string, err error) (Status, error) {
	serr := &Error{Op: op, Err: err}
	s.log.Warn("sync failed", "op", op, "error", err)
	st := s.update(func(st *Status) {
		st.State = StateError
		st.Message = serr.Error()
	})
	return st, serr
}

func (s *Syncer) notify(st Status) {
	if s.onChange != nil {
		s.onChange(st)
	}
}

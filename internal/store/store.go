package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
)

// ErrNotFound is returned when a prospect id does not exist.
var ErrNotFound = eris.New("store: prospect not found")

// ErrLockConflict is returned when a prospect's enhancement lock is held
// by a different owner.
var ErrLockConflict = eris.New("store: enhancement lock held by another owner")

// IsNotFound reports whether err is a missing-prospect error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsLockConflict reports whether err is a lock-conflict error.
func IsLockConflict(err error) bool { return errors.Is(err, ErrLockConflict) }

// Store defines persistence for prospects, their enhancement locks, and
// the inference audit log.
type Store interface {
	// Prospects
	CreateProspect(ctx context.Context, p *model.Prospect) error
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	// PutProspect commits all mutable enhancement fields of p.
	PutProspect(ctx context.Context, p *model.Prospect) error
	// ListMissingKind returns ids of prospects that still need the given
	// enhancement kind, oldest first, up to limit.
	ListMissingKind(ctx context.Context, kind model.Kind, limit int) ([]string, error)
	// ListProspectIDs returns all prospect ids, oldest first, up to limit.
	ListProspectIDs(ctx context.Context, limit int) ([]string, error)
	CountProspects(ctx context.Context) (int, error)

	// Enhancement lock. Acquire is atomic: an idle record transitions to
	// in_progress owned by ownerID; a record already owned by ownerID is
	// re-entrant success; any other owner yields ErrLockConflict.
	AcquireLock(ctx context.Context, prospectID, ownerID string) error
	// ReleaseLock unconditionally resets the lock triple to idle.
	ReleaseLock(ctx context.Context, prospectID string) error
	// ReclaimStaleLocks force-releases locks whose started_at is older
	// than the threshold and returns how many were reclaimed.
	ReclaimStaleLocks(ctx context.Context, olderThan time.Duration) (int, error)

	// Audit log
	AppendAudit(ctx context.Context, entry model.AuditEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

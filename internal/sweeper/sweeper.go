package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/obkin/biz-crm-server-sub000/internal/repository"
)

// perRecordTimeout bounds each record's updates so one stuck row cannot
// stall the whole batch.
const perRecordTimeout = 10 * time.Second

// Sweeper flips stale active block records to inactive and clears the
// owner's is_blocked flag once no active records remain. It is the only
// writer of block state outside the admin endpoints; the request-time
// guard stays read-only and tolerates the staleness window.
type Sweeper struct {
	Blocks *repository.BlockRepo
	Users  *repository.UserRepo
	Log    *slog.Logger
	Now    func() time.Time
}

func New(blocks *repository.BlockRepo, users *repository.UserRepo, log *slog.Logger) *Sweeper {
	return &Sweeper{Blocks: blocks, Users: users, Log: log, Now: time.Now}
}

// RunOnce performs a single sweep. Per-record failures are logged and the
// batch continues; only a failure to enumerate the batch is returned, to
// be retried on the next tick. Running twice with no new expirations in
// between mutates nothing the second time.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	expired, err := s.Blocks.ExpiredActive(ctx, s.Now())
	if err != nil {
		return fmt.Errorf("enumerate expired block records: %w", err)
	}

	for _, record := range expired {
		s.sweepRecord(ctx, record.ID, record.UserID)
	}
	return nil
}

func (s *Sweeper) sweepRecord(ctx context.Context, recordID, userID uint) {
	ctx, cancel := context.WithTimeout(ctx, perRecordTimeout)
	defer cancel()

	if err := s.Blocks.Deactivate(ctx, recordID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Already flipped by a concurrent actor.
			s.Log.Debug("block record already inactive", "record_id", recordID)
			return
		}
		s.Log.Error("deactivate block record failed", "record_id", recordID, "error", err)
		return
	}

	remaining, err := s.Blocks.CountActive(ctx, userID)
	if err != nil {
		s.Log.Error("count active blocks failed", "user_id", userID, "error", err)
		return
	}
	if remaining == 0 {
		if err := s.Users.SetBlocked(ctx, userID, false); err != nil {
			s.Log.Error("clear is_blocked failed", "user_id", userID, "error", err)
			return
		}
		s.Log.Info("user unblocked", "user_id", userID, "record_id", recordID)
	}
}

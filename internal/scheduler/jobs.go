package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/wechatgram/internal/state"
	"github.com/user/wechatgram/internal/wechat"
)

// Snapshotter is implemented by *wechat.Client.
type Snapshotter interface {
	Snapshot() *wechat.Snapshot
}

// ContactRefresher is implemented by *wechat.Client.
type ContactRefresher interface {
	RefreshContacts(ctx context.Context) error
}

// Checkpoint persists the client's session and cookies so that a crash
// loses at most one interval.
func Checkpoint(schedule string, store *state.Store, src Snapshotter) Job {
	return Job{
		Name:     "checkpoint",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			snap := src.Snapshot()
			if err := store.Save(snap); err != nil {
				return err
			}
			slog.Debug("state checkpoint written", "valid", snap.Session.Valid, "cookies", len(snap.Cookies))
			return nil
		},
	}
}

// Refresh re-reads the contact directory. Ticks that find no live session
// are skipped.
func Refresh(schedule string, r ContactRefresher) Job {
	return Job{
		Name:     "refresh-contacts",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			err := r.RefreshContacts(ctx)
			if errors.Is(err, wechat.ErrSessionInvalid) {
				slog.Debug("contact refresh skipped, not logged in")
				return nil
			}
			return err
		},
	}
}

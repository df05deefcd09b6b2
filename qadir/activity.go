package qadir

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"slices"
	"time"
)

const (
	activityActionStart = "start"
	activityActionStop  = "stop"
)

func (q *Qadir) activityKey(userID string) string {
	return q.cache.Key(cacheKeyActivity, userID)
}

// activityLockKey ex: qadir:activity:lock:start:{user}:{app}
func (q *Qadir) activityLockKey(action string, userID string, appID string) string {
	return q.cache.Key(cacheKeyActivity, cacheKeyLock, action, userID, appID)
}

// activityStartTime is when the activity began, by the presence's own
// start timestamp, then its creation time, then now
func activityStartTime(a *discordgo.Activity, now time.Time) time.Time {
	if a.Timestamps.StartTimestamp > 0 {
		return time.UnixMilli(a.Timestamps.StartTimestamp).UTC()
	}
	if !a.CreatedAt.IsZero() {
		return a.CreatedAt.UTC()
	}
	return now.UTC()
}

// handlePresenceUpdate processes a gateway presence update, once the
// bot is initialised
func (q *Qadir) handlePresenceUpdate(ctx context.Context, p *discordgo.PresenceUpdate) {
	if err := q.WaitUntilInitialised(ctx); err != nil {
		return
	}
	if p.User == nil {
		return
	}
	q.processPresence(ctx, p.GuildID, p.User.ID, p.Activities)
}

// processPresence compares the tracked sessions of userID with the
// configured applications in their current presence, starting and
// stopping sessions as needed
func (q *Qadir) processPresence(
	ctx context.Context,
	guildID string,
	userID string,
	activities []*discordgo.Activity,
) {
	cfg := q.config.Activity
	if !slices.Contains(cfg.Guilds, guildID) {
		return
	}
	logger := q.logger.With("user_id", userID, "guild_id", guildID)

	current := map[string]*discordgo.Activity{}
	for _, a := range activities {
		if a == nil || a.ApplicationID == "" || !slices.Contains(cfg.Applications, a.ApplicationID) {
			continue
		}
		current[a.ApplicationID] = a
	}

	tracked, err := q.cache.HGetAll(ctx, q.activityKey(userID))
	if err != nil {
		logger.ErrorContext(ctx, "error loading tracked activities", tint.Err(err))
		return
	}

	for appID, a := range current {
		if _, ok := tracked[appID]; ok {
			continue
		}
		if err = q.startActivity(ctx, userID, a); err != nil {
			logger.ErrorContext(ctx, "error handling start activity", "application_id", appID, tint.Err(err))
		}
	}
	for appID := range tracked {
		if _, ok := current[appID]; ok {
			continue
		}
		if err = q.stopActivity(ctx, userID, appID); err != nil {
			logger.ErrorContext(ctx, "error handling stop activity", "application_id", appID, tint.Err(err))
		}
	}
}

// startActivity records an in-progress session. Concurrent starts for
// the same user and application are dropped.
func (q *Qadir) startActivity(ctx context.Context, userID string, a *discordgo.Activity) error {
	ok, err := q.cache.Lock(ctx, q.activityLockKey(activityActionStart, userID, a.ApplicationID), q.config.Activity.LockTTL)
	if err != nil || !ok {
		return err
	}

	partial := PartialActivity{
		UserID:        userID,
		ApplicationID: a.ApplicationID,
		Name:          a.Name,
		StartTime:     activityStartTime(a, q.now()),
	}
	set, err := q.cache.HSetNXJSON(ctx, q.activityKey(userID), a.ApplicationID, partial)
	if err != nil {
		return err
	}
	if set {
		q.metrics.activities.WithLabelValues(activityActionStart).Inc()
		q.logger.DebugContext(ctx, "tracked activity", "user_id", userID, "application_id", a.ApplicationID)
	}
	return nil
}

// stopActivity finishes the tracked session of appID and persists it
func (q *Qadir) stopActivity(ctx context.Context, userID string, appID string) error {
	ok, err := q.cache.Lock(ctx, q.activityLockKey(activityActionStop, userID, appID), q.config.Activity.LockTTL)
	if err != nil || !ok {
		return err
	}

	var partial PartialActivity
	err = q.cache.PopHashField(ctx, q.activityKey(userID), appID, &partial)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return err
	}

	activity := partial.finish(uuid.NewString(), q.now().UTC())
	if err = q.store.CreateActivity(ctx, activity); err != nil {
		return err
	}
	q.metrics.activities.WithLabelValues(activityActionStop).Inc()
	q.logger.DebugContext(
		ctx,
		"saved activity",
		"user_id", userID,
		"application_id", appID,
		"duration", activity.Duration,
	)
	return nil
}

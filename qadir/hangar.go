package qadir

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"strings"
	"time"
)

const (
	hangarOpenDuration  = 3900381 * time.Millisecond
	hangarCloseDuration = 7200704 * time.Millisecond
	hangarCycleDuration = hangarOpenDuration + hangarCloseDuration

	hangarStatusOpen   = "Hangar Open"
	hangarStatusClosed = "Hangar Closed"
)

// hangarInitialOpenTime is a known start of an open phase
var hangarInitialOpenTime = time.Date(
	2025, time.October, 16, 13, 43, 24, 402*int(time.Millisecond),
	time.FixedZone("EDT", -4*60*60),
)

type hangarLight int

const (
	lightEmpty hangarLight = iota
	lightGreen
	lightRed
)

func (l hangarLight) Emoji() string {
	switch l {
	case lightGreen:
		return "🟢"
	case lightRed:
		return "🔴"
	default:
		return "⚫"
	}
}

type hangarThreshold struct {
	min    time.Duration
	max    time.Duration
	lights [5]hangarLight
}

// hangarThresholds maps the position in the cycle to the LED pattern.
// The open phase counts green lights down, the closed phase counts
// them back up.
var hangarThresholds = func() []hangarThreshold {
	g, r, e := lightGreen, lightRed, lightEmpty
	return []hangarThreshold{
		{0, 12 * time.Minute, [5]hangarLight{g, g, g, g, g}},
		{12 * time.Minute, 24 * time.Minute, [5]hangarLight{g, g, g, g, e}},
		{24 * time.Minute, 36 * time.Minute, [5]hangarLight{g, g, g, e, e}},
		{36 * time.Minute, 48 * time.Minute, [5]hangarLight{g, g, e, e, e}},
		{48 * time.Minute, 60 * time.Minute, [5]hangarLight{g, e, e, e, e}},
		{60 * time.Minute, 65 * time.Minute, [5]hangarLight{e, e, e, e, e}},
		{65 * time.Minute, 89 * time.Minute, [5]hangarLight{r, r, r, r, r}},
		{89 * time.Minute, 113 * time.Minute, [5]hangarLight{g, r, r, r, r}},
		{113 * time.Minute, 137 * time.Minute, [5]hangarLight{g, g, r, r, r}},
		{137 * time.Minute, 161 * time.Minute, [5]hangarLight{g, g, g, r, r}},
		{161 * time.Minute, 185 * time.Minute, [5]hangarLight{g, g, g, g, r}},
	}
}()

// HangarState is the executive hangar status at a point in time
type HangarState struct {
	At               time.Time
	Online           bool
	InCycle          time.Duration
	Lights           [5]hangarLight
	NextStatusChange time.Time
	NextLightChange  time.Time
}

// hangarStateAt computes the hangar state at t
func hangarStateAt(t time.Time) HangarState {
	inCycle := t.Sub(hangarInitialOpenTime) % hangarCycleDuration
	if inCycle < 0 {
		inCycle += hangarCycleDuration
	}

	state := HangarState{At: t, InCycle: inCycle}
	if inCycle < hangarOpenDuration {
		state.Online = true
		state.NextStatusChange = t.Add(hangarOpenDuration - inCycle)
	} else {
		state.NextStatusChange = t.Add(hangarCloseDuration - (inCycle - hangarOpenDuration))
	}

	idx := len(hangarThresholds) - 1
	for n, th := range hangarThresholds {
		if inCycle >= th.min && inCycle < th.max {
			idx = n
			break
		}
	}
	state.Lights = hangarThresholds[idx].lights

	if idx < len(hangarThresholds)-1 {
		state.NextLightChange = t.Add(hangarThresholds[idx].max - inCycle + time.Second)
	} else {
		state.NextLightChange = t.Add(hangarCycleDuration - inCycle + time.Second)
	}
	return state
}

func (s HangarState) Status() string {
	if s.Online {
		return hangarStatusOpen
	}
	return hangarStatusClosed
}

func (s HangarState) LightsDisplay() string {
	lights := make([]string, 0, len(s.Lights))
	for _, l := range s.Lights {
		lights = append(lights, l.Emoji())
	}
	return strings.Join(lights, " ")
}

func (s HangarState) Embed() *discordgo.MessageEmbed {
	color := colorHangarOff
	phase := &discordgo.MessageEmbedField{
		Name:  "ℹ️ Offline Phase",
		Value: "Executive hangars are currently offline. LED progression indicates time until reopening.",
	}
	if s.Online {
		color = colorHangarOn
		phase = &discordgo.MessageEmbedField{
			Name:  "ℹ️ Online Phase",
			Value: "Executive hangars are operational! LED progression shows time remaining until closure.",
		}
	}

	return &discordgo.MessageEmbed{
		Title:     "Executive Hangar Status",
		Color:     color,
		Timestamp: embedTimestamp(s.At),
		Author: &discordgo.MessageEmbedAuthor{
			Name: "Provided by: exec.xyxyll.com",
			URL:  "https://exec.xyxyll.com",
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🎯 Current Status", Value: "**" + s.Status() + "**", Inline: true},
			{Name: "⏰ Next Status Change", Value: discordRelativeTimestamp(s.NextStatusChange), Inline: true},
			{Name: "⏰ Next Light Change", Value: discordRelativeTimestamp(s.NextLightChange), Inline: true},
			{Name: "💡 LED Status", Value: s.LightsDisplay()},
			phase,
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Updated for Star Citizen Patch 4.3.1-LIVE (Ver 10321721)",
		},
	}
}

func (q *Qadir) hangarCacheKey() string {
	return q.cache.Key(cacheKeyHangar, cacheKeyHangarEmbeds)
}

// handleHangarCreate posts a hangar status embed in the current channel
// and tracks it for updates
func (q *Qadir) handleHangarCreate(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	logger := h.Logger()

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	state := hangarStateAt(q.now())
	msg, err := q.discord.session.ChannelMessageSendComplex(
		i.ChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{state.Embed()}},
	)
	if err != nil {
		return userError(err, "", "Failed to create the hangar embed. Are you sure I have permissions?")
	}

	embed := &HangarEmbed{
		ID:        uuid.NewString(),
		MessageID: msg.ID,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
		CreatedAt: q.now().UTC(),
	}
	if err = q.store.CreateHangarEmbed(ctx, embed); err != nil {
		if delErr := q.discord.session.ChannelMessageDelete(i.ChannelID, msg.ID); delErr != nil {
			logger.ErrorContext(ctx, "error deleting untracked hangar embed", tint.Err(delErr))
		}
		return userError(err, "", "Failed to create the hangar embed. Please try again.")
	}
	if err = q.cache.Delete(ctx, q.hangarCacheKey()); err != nil {
		logger.WarnContext(ctx, "error invalidating hangar embed cache", tint.Err(err))
	}

	logger.InfoContext(ctx, "created hangar embed", "message_id", msg.ID)
	return respondEmbed(
		ctx,
		h,
		true,
		successEmbed(
			"Embed Created",
			"I've created a hangar status embed in this channel and will update it automatically",
		),
	)
}

// hangarEmbeds returns all tracked hangar embeds, from the cache if possible
func (q *Qadir) hangarEmbeds(ctx context.Context) ([]*HangarEmbed, error) {
	var embeds []*HangarEmbed
	err := q.cache.GetJSON(ctx, q.hangarCacheKey(), &embeds)
	if err == nil {
		return embeds, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		q.logger.WarnContext(ctx, "error reading hangar embed cache", tint.Err(err))
	}

	embeds, err = q.store.ListHangarEmbeds(ctx)
	if err != nil {
		return nil, err
	}
	if len(embeds) > 0 {
		if err = q.cache.SetJSON(ctx, q.hangarCacheKey(), embeds, q.config.Hangar.CacheTTL); err != nil {
			q.logger.WarnContext(ctx, "error caching hangar embeds", tint.Err(err))
		}
	}
	return embeds, nil
}

// processHangarEmbeds edits every tracked hangar embed with the current
// state, returning the number updated. Embeds whose message is gone
// are untracked.
func (q *Qadir) processHangarEmbeds(ctx context.Context) int {
	embeds, err := q.hangarEmbeds(ctx)
	if err != nil {
		q.logger.ErrorContext(ctx, "error loading hangar embeds", tint.Err(err))
		return 0
	}
	if len(embeds) == 0 {
		q.logger.DebugContext(ctx, "no hangar embeds to process")
		return 0
	}

	processed := 0
	for _, he := range embeds {
		if err = q.hangarLimiter.Wait(ctx); err != nil {
			return processed
		}
		embed := hangarStateAt(q.now()).Embed()
		_, err = q.discord.session.ChannelMessageEditComplex(
			discordgo.NewMessageEdit(he.ChannelID, he.MessageID).
				SetEmbeds([]*discordgo.MessageEmbed{embed}),
		)
		switch {
		case err == nil:
			processed++
			q.metrics.hangarEdits.WithLabelValues("ok").Inc()
		case isDiscordNotFound(err):
			q.metrics.hangarEdits.WithLabelValues("not_found").Inc()
			q.logger.WarnContext(ctx, "untracking missing hangar embed", "message_id", he.MessageID)
			if err = q.store.DeleteHangarEmbed(ctx, he.MessageID); err != nil {
				q.logger.ErrorContext(ctx, "error untracking hangar embed", tint.Err(err))
			}
			if err = q.cache.Delete(ctx, q.hangarCacheKey()); err != nil {
				q.logger.WarnContext(ctx, "error invalidating hangar embed cache", tint.Err(err))
			}
		default:
			q.metrics.hangarEdits.WithLabelValues("error").Inc()
			q.logger.ErrorContext(
				ctx,
				"error updating hangar embed",
				"message_id", he.MessageID,
				tint.Err(err),
			)
		}
	}
	q.logger.DebugContext(ctx, "processed hangar embeds", "count", processed)
	return processed
}

// hangarSleep is how long to wait before the next update
func (q *Qadir) hangarSleep() time.Duration {
	now := q.now()
	wait := hangarStateAt(now).NextLightChange.Sub(now)
	if wait > q.config.Hangar.MaxInterval {
		wait = q.config.Hangar.MaxInterval
	}
	if wait <= 0 {
		wait = time.Second
	}
	return wait
}

// runHangarLoop keeps tracked hangar embeds up to date until ctx is done
func (q *Qadir) runHangarLoop(ctx context.Context) {
	if err := q.WaitUntilInitialised(ctx); err != nil {
		return
	}
	for {
		q.processHangarEmbeds(ctx)

		wait := q.hangarSleep()
		q.logger.DebugContext(ctx, "next hangar update scheduled", "in", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

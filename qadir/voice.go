package qadir

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"slices"
)

// joinVoiceChannel joins channelID muted and deafened. The guild is
// looked up when guildID is empty.
func (q *Qadir) joinVoiceChannel(ctx context.Context, guildID string, channelID string) error {
	logger := q.logger.With("channel_id", channelID)
	if guildID == "" {
		ch, err := q.discord.session.Channel(channelID)
		if err != nil {
			return err
		}
		guildID = ch.GuildID
	}
	if _, err := q.discord.session.ChannelVoiceJoin(guildID, channelID, true, true); err != nil {
		return err
	}
	logger.DebugContext(ctx, "connected to voice channel", "guild_id", guildID)
	return nil
}

func (q *Qadir) logVoiceError(ctx context.Context, channelID string, err error) {
	switch {
	case isDiscordNotFound(err):
		q.logger.ErrorContext(ctx, "voice channel not found", "channel_id", channelID)
	case isDiscordForbidden(err):
		q.logger.ErrorContext(ctx, "missing permissions to connect to voice channel", "channel_id", channelID)
	default:
		q.logger.ErrorContext(ctx, "failed to connect to voice channel", "channel_id", channelID, tint.Err(err))
	}
}

// connectVoiceChannels joins every configured voice channel
func (q *Qadir) connectVoiceChannels(ctx context.Context) {
	channels := q.config.Voice.Channels
	if len(channels) == 0 {
		q.logger.WarnContext(ctx, "no voice channels configured")
		return
	}
	for _, channelID := range channels {
		if err := q.joinVoiceChannel(ctx, "", channelID); err != nil {
			q.logVoiceError(ctx, channelID, err)
		}
	}
}

// handleVoiceStateUpdate processes a gateway voice state update, once
// the bot is initialised
func (q *Qadir) handleVoiceStateUpdate(ctx context.Context, v *discordgo.VoiceStateUpdate) {
	if err := q.WaitUntilInitialised(ctx); err != nil {
		return
	}
	q.processBotVoiceState(ctx, v.BeforeUpdate, v.VoiceState)
}

// processBotVoiceState rejoins a configured channel the bot was moved
// or disconnected from, and restores mute/deaf
func (q *Qadir) processBotVoiceState(ctx context.Context, before *discordgo.VoiceState, after *discordgo.VoiceState) {
	if after == nil || after.UserID != q.discord.BotUserID() {
		return
	}
	configured := q.config.Voice.Channels

	if after.ChannelID != "" && slices.Contains(configured, after.ChannelID) && (!after.SelfMute || !after.SelfDeaf) {
		if err := q.joinVoiceChannel(ctx, after.GuildID, after.ChannelID); err != nil {
			q.logger.ErrorContext(ctx, "failed to mute/deafen in voice channel", "channel_id", after.ChannelID, tint.Err(err))
		}
	}

	if before == nil || !slices.Contains(configured, before.ChannelID) {
		return
	}
	if after.ChannelID != "" && slices.Contains(configured, after.ChannelID) {
		return
	}
	q.logger.InfoContext(ctx, "rejoining voice channel", "channel_id", before.ChannelID)
	if err := q.joinVoiceChannel(ctx, before.GuildID, before.ChannelID); err != nil {
		q.logVoiceError(ctx, before.ChannelID, err)
	}
}

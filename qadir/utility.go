package qadir

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
)

func (q *Qadir) handlePing(ctx context.Context, h InteractionHandler) error {
	return respondContent(ctx, h, true, "🟢 Pong!")
}

// infoEmbed describes the running bot
func (q *Qadir) infoEmbed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "App Information",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Version", Value: fmt.Sprintf("`%s`", q.config.App.Version), Inline: true},
			{
				Name:   "Latency",
				Value:  fmt.Sprintf("`%d ms`", q.discord.session.HeartbeatLatency().Milliseconds()),
				Inline: true,
			},
			{Name: "Guilds", Value: fmt.Sprintf("`%d`", q.discord.session.GuildCount())},
		},
	}
	if q.config.App.DeveloperID != "" {
		embed.Description = fmt.Sprintf("A magical application created by %s.", mention(q.config.App.DeveloperID))
	}
	return embed
}

func (q *Qadir) handleInfo(ctx context.Context, h InteractionHandler) error {
	return respondEmbed(ctx, h, false, q.infoEmbed())
}

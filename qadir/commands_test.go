package qadir

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func commandNames(cmds []*discordgo.ApplicationCommand) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}

func TestCommandsByGuild(t *testing.T) {
	q, _, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Discord.GuildID = "home"
			cfg.Proposals.Guilds = []string{"g1"}
			cfg.Events.Guilds = []string{"g1", "g2"}
		},
	)

	grouped := q.commandsByGuild()
	require.Len(t, grouped, 4)
	assert.ElementsMatch(t, []string{commandPing, commandInfo}, commandNames(grouped[""]))
	assert.ElementsMatch(t, []string{commandPropose, commandEvent}, commandNames(grouped["g1"]))
	assert.ElementsMatch(t, []string{commandEvent}, commandNames(grouped["g2"]))
	assert.ElementsMatch(t, []string{commandHangar}, commandNames(grouped["home"]))
}

func TestRegisterSlashCommands(t *testing.T) {
	q, session, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Hangar.Guilds = []string{"g1"}
		},
	)

	registered, err := q.RegisterSlashCommands(discordgo.WithContext(context.Background()))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{commandHangar}, commandNames(registered["g1"]))
	for _, c := range registered["g1"] {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "999", c.ApplicationID)
	}
	assert.Len(t, session.commands, 2)
}

func TestEventCommandDefinition(t *testing.T) {
	q, _, _ := newTestQadir(t)
	def := q.commands[commandEvent].definition

	var subcommands []string
	for _, opt := range def.Options {
		subcommands = append(subcommands, opt.Name)
	}
	assert.Equal(t, []string{"create", "join", "loot", "finalise", "list"}, subcommands)

	loot := def.Options[2]
	require.Len(t, loot.Options, 2)
	assert.True(t, loot.Options[0].Autocomplete)
	assert.Equal(t, 1.0, *loot.Options[1].MinValue)
	assert.Equal(t, float64(maxLootQuantity-1), loot.Options[1].MaxValue)
}

func TestRunCommand_MissingRole(t *testing.T) {
	q, session, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Proposals.Roles = []string{"member"}
		},
	)

	dispatch(context.Background(), q, newCommandInteraction(testChannelID, newTestUser("1"), commandPropose))
	assert.Equal(t, "Permission Denied", session.lastEmbed(t).Title)

	i := newCommandInteraction(testChannelID, newTestUser("1"), commandPropose)
	i.Member.Roles = []string{"member"}
	dispatch(context.Background(), q, i)
	assert.Equal(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)
}

func TestRunCommand_NoRolesConfigured(t *testing.T) {
	q, session, _ := newTestQadir(t)

	i := newCommandInteraction(testChannelID, newTestUser("1"), commandPropose)
	i.Member.Roles = []string{"anything"}
	dispatch(context.Background(), q, i)
	assert.Equal(t, "Permission Denied", session.lastEmbed(t).Title)
}

func TestRunCommand_OutsideGuild(t *testing.T) {
	q, session, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Hangar.Guilds = []string{"elsewhere"}
		},
	)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandHangar, subcommandOption("create")),
	)
	assert.Equal(t, "Permission Denied", session.lastEmbed(t).Title)
	assert.Empty(t, session.sentTo(testChannelID))
}

func TestRunCommand_Cooldown(t *testing.T) {
	q, session, mr := newTestQadir(
		t, func(cfg *Config) {
			cfg.Proposals.Roles = []string{"member"}
			cfg.Proposals.Cooldown = time.Minute
		},
	)
	newPropose := func() *discordgo.InteractionCreate {
		i := newCommandInteraction(testChannelID, newTestUser("1"), commandPropose)
		i.Member.Roles = []string{"member"}
		return i
	}

	dispatch(context.Background(), q, newPropose())
	assert.Equal(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)

	dispatch(context.Background(), q, newPropose())
	embed := session.lastEmbed(t)
	assert.Equal(t, "Command On Cooldown", embed.Title)
	assert.Contains(t, embed.Description, "60.00")

	// other users aren't affected
	other := newCommandInteraction(testChannelID, newTestUser("2"), commandPropose)
	other.Member.Roles = []string{"member"}
	dispatch(context.Background(), q, other)
	assert.Equal(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)

	mr.FastForward(time.Minute)
	dispatch(context.Background(), q, newPropose())
	assert.Equal(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)
}

func TestRunCommand_SubcommandCooldown(t *testing.T) {
	q, session, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Events.Cooldown = time.Minute
			cfg.Events.Channels = []string{testChannelID}
		},
	)
	user := newTestUser("1")

	dispatch(context.Background(), q, newCommandInteraction(testChannelID, user, commandEvent, subcommandOption("create")))
	assert.Equal(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)

	dispatch(context.Background(), q, newCommandInteraction(testChannelID, user, commandEvent, subcommandOption("create")))
	assert.Equal(t, "Command On Cooldown", session.lastEmbed(t).Title)

	// only /event create has a cooldown
	dispatch(context.Background(), q, newCommandInteraction(testChannelID, user, commandEvent, subcommandOption("list")))
	assert.NotEqual(t, "Command On Cooldown", session.lastEmbed(t).Title)
}

func TestHandleHangar_UnknownSubcommand(t *testing.T) {
	q, session, _ := newTestQadir(t)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandHangar, subcommandOption("destroy")),
	)
	assert.Equal(t, defaultErrorTitle, session.lastEmbed(t).Title)
}

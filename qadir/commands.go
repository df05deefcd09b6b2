package qadir

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"time"
)

const (
	commandPing    = "ping"
	commandInfo    = "info"
	commandPropose = "propose"
	commandEvent   = "event"
	commandHangar  = "hangar"
)

type commandFunc func(ctx context.Context, h InteractionHandler) error

// slashCommand binds a command definition to its handlers and the
// checks run before the handler.
type slashCommand struct {
	definition *discordgo.ApplicationCommand

	// guilds the command is registered in. Empty registers it globally,
	// or in the configured discord guild for module commands.
	guilds []string

	// global commands ignore discord.guild_id
	global bool

	// roles, when restricted, lists the roles allowed to use the command
	roles      []string
	restricted bool

	// cooldowns per subcommand, "" for commands without subcommands
	cooldowns map[string]time.Duration

	handler      commandFunc
	autocomplete commandFunc
}

// cooldown returns the cooldown applying to the invoked subcommand
func (c *slashCommand) cooldown(i *discordgo.InteractionCreate) time.Duration {
	if len(c.cooldowns) == 0 {
		return 0
	}
	return c.cooldowns[subcommandName(i)]
}

// allowed reports whether member passes the command's role check
func (c *slashCommand) allowed(member *discordgo.Member) bool {
	if !c.restricted {
		return true
	}
	return hasAnyRole(member, c.roles)
}

func (q *Qadir) buildCommands() map[string]*slashCommand {
	var (
		minQuantity = 1.0
		dmDisabled  = false
	)
	commands := []*slashCommand{
		{
			global: true,
			definition: &discordgo.ApplicationCommand{
				Name:        commandPing,
				Description: "Ping the application.",
			},
			handler: q.handlePing,
		},
		{
			global: true,
			definition: &discordgo.ApplicationCommand{
				Name:        commandInfo,
				Description: "Displays information about the app.",
			},
			handler: q.handleInfo,
		},
		{
			guilds:     q.config.Proposals.Guilds,
			roles:      q.config.Proposals.Roles,
			restricted: true,
			cooldowns:  map[string]time.Duration{"": q.config.Proposals.Cooldown},
			definition: &discordgo.ApplicationCommand{
				Name:         commandPropose,
				Description:  "Submit a proposal.",
				DMPermission: &dmDisabled,
			},
			handler: q.handlePropose,
		},
		{
			guilds:    q.config.Events.Guilds,
			cooldowns: map[string]time.Duration{"create": q.config.Events.Cooldown},
			definition: &discordgo.ApplicationCommand{
				Name:         commandEvent,
				Description:  "Manage loot tracking events",
				DMPermission: &dmDisabled,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "create",
						Description: "Create a new loot tracking event",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "join",
						Description: "Join an active event to participate in loot tracking",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "loot",
						Description: "Add loot items you've collected to an event",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:         discordgo.ApplicationCommandOptionString,
								Name:         eventOptionItem,
								Description:  "The item you collected",
								Required:     true,
								Autocomplete: true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        eventOptionQuantity,
								Description: "How many you collected",
								Required:    true,
								MinValue:    &minQuantity,
								MaxValue:    maxLootQuantity - 1,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "finalise",
						Description: "Finalise and close an event you created",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "Show all events you've created",
					},
				},
			},
			handler:      q.handleEvent,
			autocomplete: q.handleEventLootAutocomplete,
		},
		{
			guilds: q.config.Hangar.Guilds,
			definition: &discordgo.ApplicationCommand{
				Name:         commandHangar,
				Description:  "Manage executive hangar operations",
				DMPermission: &dmDisabled,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "create",
						Description: "Create an embed to track the executive hangar status",
					},
				},
			},
			handler: q.handleHangar,
		},
	}

	byName := make(map[string]*slashCommand, len(commands))
	for _, c := range commands {
		byName[c.definition.Name] = c
	}
	return byName
}

// handleHangar dispatches the /hangar subcommands
func (q *Qadir) handleHangar(ctx context.Context, h InteractionHandler) error {
	switch sub := subcommandName(h.GetInteraction()); sub {
	case "create":
		return q.handleHangarCreate(ctx, h)
	default:
		return fmt.Errorf("unknown hangar subcommand %q", sub)
	}
}

// commandsByGuild groups command definitions by the guild they're
// registered in. The empty key holds global commands.
func (q *Qadir) commandsByGuild() map[string][]*discordgo.ApplicationCommand {
	grouped := map[string][]*discordgo.ApplicationCommand{}
	for _, c := range q.commands {
		switch {
		case c.global:
			grouped[""] = append(grouped[""], c.definition)
		case len(c.guilds) > 0:
			for _, g := range c.guilds {
				grouped[g] = append(grouped[g], c.definition)
			}
		default:
			grouped[q.config.Discord.GuildID] = append(grouped[q.config.Discord.GuildID], c.definition)
		}
	}
	return grouped
}

// RegisterSlashCommands overwrites the bot's application commands in
// every guild they're configured for.
func (q *Qadir) RegisterSlashCommands(options ...discordgo.RequestOption) (
	map[string][]*discordgo.ApplicationCommand,
	error,
) {
	if q.discord.session == nil {
		session, err := q.discord.newSession()
		if err != nil {
			return nil, err
		}
		q.discord.session = session
	}
	return q.discord.registerCommands(q.commandsByGuild(), options...)
}

// runCommand runs the checks for an application command, then its handler
func (q *Qadir) runCommand(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	name := i.ApplicationCommandData().Name
	cmd, ok := q.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	logger := h.Logger()

	if !cmd.global && len(cmd.guilds) > 0 && !allowedIn(cmd.guilds, i.GuildID) {
		logger.WarnContext(ctx, "command used outside its guilds")
		return respondEmbed(ctx, h, true, permissionDeniedEmbed())
	}
	if !cmd.allowed(i.Member) {
		logger.InfoContext(ctx, "command denied, missing role")
		return respondEmbed(ctx, h, true, permissionDeniedEmbed())
	}

	if cooldown := cmd.cooldown(i); cooldown > 0 {
		parts := []string{cacheKeyCooldown, name}
		if sub := subcommandName(i); sub != "" {
			parts = append(parts, sub)
		}
		key := q.cache.Key(append(parts, getDiscordUser(i).ID)...)
		retryAfter, ok, err := q.cache.Cooldown(ctx, key, cooldown)
		if err != nil {
			logger.ErrorContext(ctx, "error checking cooldown", tint.Err(err))
		} else if !ok {
			return respondEmbed(ctx, h, true, cooldownEmbed(retryAfter))
		}
	}

	return cmd.handler(ctx, h)
}

package qadir

import (
	"fmt"
	"github.com/bwmarrin/discordgo"
	"time"
)

const (
	colorGreen     = 0x2ECC71
	colorRed       = 0xE74C3C
	colorGold      = 0xFFD700
	colorBlue      = 0x0099FF
	colorInfo      = 0x00FF00
	colorHangarOn  = 0x32CD32
	colorHangarOff = 0xFF0000

	defaultErrorTitle       = "Uh Oh"
	defaultErrorDescription = "Something went wrong 😞"

	// discordEmbedFieldMaxLength is the maximum length of an embed field value
	discordEmbedFieldMaxLength = 1024
)

func successEmbed(title string, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorGreen,
	}
}

// errorEmbed returns a red embed. An empty title or description falls
// back to the generic error message.
func errorEmbed(title string, description string) *discordgo.MessageEmbed {
	if title == "" {
		title = defaultErrorTitle
	}
	if description == "" {
		description = defaultErrorDescription
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorRed,
	}
}

func permissionDeniedEmbed() *discordgo.MessageEmbed {
	return errorEmbed("Permission Denied", "You do not have permission to use this command")
}

func cooldownEmbed(retryAfter time.Duration) *discordgo.MessageEmbed {
	return errorEmbed(
		"Command On Cooldown",
		fmt.Sprintf("This command is on cooldown, try again in `%.2f` seconds", retryAfter.Seconds()),
	)
}

func embedTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

package qadir

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"sync/atomic"
)

// InteractionHandler wraps a single discord interaction, and the calls
// used to respond to it.
type InteractionHandler interface {
	// Respond sends the initial response to a Discord interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit modifies the initial interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// Followup sends an additional message, after the initial response.
	Followup(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error)

	// Responded reports whether an initial response has been sent.
	Responded() bool

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
	responded   *atomic.Bool
}

func newGatewayHandler(
	session DiscordSessionHandler,
	i *discordgo.InteractionCreate,
	logger *slog.Logger,
) GatewayHandler {
	return GatewayHandler{
		session:     session,
		interaction: i,
		logger:      logger.With(interactionLogAttrs(*i)...),
		responded:   &atomic.Bool{},
	}
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
		return err
	}
	w.responded.Store(true)
	w.logger.DebugContext(ctx, "responded to interaction", "response_type", response.Type)
	return nil
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(w.interaction.Interaction, wh, opts...)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Followup(
	ctx context.Context,
	params *discordgo.WebhookParams,
) (*discordgo.Message, error) {
	msg, err := w.session.FollowupMessageCreate(w.interaction.Interaction, true, params)
	if err != nil {
		w.logger.ErrorContext(ctx, "error sending followup", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Responded() bool {
	return w.responded.Load()
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// interactionError is an error with a message meant for the user
type interactionError struct {
	Title       string
	Description string
	Err         error
}

func (e *interactionError) Error() string {
	if e.Err != nil {
		return e.Title + ": " + e.Err.Error()
	}
	return e.Title + ": " + e.Description
}

func (e *interactionError) Unwrap() error {
	return e.Err
}

// userError returns an error shown to the user as an error embed
func userError(err error, title string, description string) error {
	return &interactionError{Title: title, Description: description, Err: err}
}

// respondEmbed sends embed as the initial response, or as a followup
// if the interaction was already acknowledged
func respondEmbed(
	ctx context.Context,
	h InteractionHandler,
	ephemeral bool,
	embeds ...*discordgo.MessageEmbed,
) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if h.Responded() {
		_, err := h.Followup(ctx, &discordgo.WebhookParams{Embeds: embeds, Flags: flags})
		return err
	}
	return h.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Embeds: embeds, Flags: flags},
		},
	)
}

// respondContent is respondEmbed for plain text responses
func respondContent(ctx context.Context, h InteractionHandler, ephemeral bool, content string) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if h.Responded() {
		_, err := h.Followup(ctx, &discordgo.WebhookParams{Content: content, Flags: flags})
		return err
	}
	return h.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
		},
	)
}

// deferResponse acknowledges the interaction, showing a loading state
func deferResponse(ctx context.Context, h InteractionHandler, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return h.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: flags},
		},
	)
}

func respondModal(
	ctx context.Context,
	h InteractionHandler,
	customID string,
	title string,
	inputs ...discordgo.TextInput,
) error {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, input := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{input}})
	}
	return h.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   customID,
				Title:      title,
				Components: rows,
			},
		},
	)
}

// respondError reports err to the user as an ephemeral error embed.
// Errors not created with userError are logged, and the user gets the
// generic error embed.
func respondError(ctx context.Context, h InteractionHandler, err error) {
	embed := errorEmbed("", "")
	var ie *interactionError
	if errors.As(err, &ie) {
		embed = errorEmbed(ie.Title, ie.Description)
		h.Logger().InfoContext(ctx, "interaction rejected", "reason", ie.Title, tint.Err(ie.Err))
	} else {
		h.Logger().ErrorContext(ctx, "error handling interaction", tint.Err(err))
	}
	if rerr := respondEmbed(ctx, h, true, embed); rerr != nil {
		h.Logger().ErrorContext(ctx, "error sending error response", tint.Err(rerr))
	}
}

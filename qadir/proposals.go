package qadir

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"strings"
	"time"
)

const (
	customIDProposalCreate = "proposal_create"
	customIDProposalVote   = "proposal_vote"

	proposalInputTitle     = "title"
	proposalInputSummary   = "summary"
	proposalInputReasoning = "reasoning"
	proposalInputOutcome   = "outcome"

	voteUp   = "up"
	voteDown = "down"

	proposalThreadArchiveMinutes = 1440
)

var ErrProposalClosed = errors.New("proposal is closed")

// proposalVoteCustomID builds the custom ID of a poll button,
// ex: proposal_vote:up:123
func proposalVoteCustomID(direction string, threadID string) string {
	return customIDProposalVote + ":" + direction + ":" + threadID
}

// parseProposalVoteCustomID is the inverse of proposalVoteCustomID
func parseProposalVoteCustomID(customID string) (upvote bool, threadID string, err error) {
	parts := strings.SplitN(customID, ":", 3)
	if len(parts) != 3 || parts[0] != customIDProposalVote || parts[2] == "" {
		return false, "", fmt.Errorf("invalid vote custom id %q", customID)
	}
	switch parts[1] {
	case voteUp:
		return true, parts[2], nil
	case voteDown:
		return false, parts[2], nil
	default:
		return false, "", fmt.Errorf("invalid vote direction %q", parts[1])
	}
}

// votingPeriodText renders d in the largest whole unit, ex: "24 hours"
func votingPeriodText(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		return fmt.Sprintf("%d %s", n, pluralize(n, "hour"))
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		return fmt.Sprintf("%d %s", n, pluralize(n, "minute"))
	default:
		return d.String()
	}
}

func pollEmbed(upvotes int, downvotes int, votingPeriod time.Duration) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: "Please use the buttons below to cast your vote.",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👍 Upvotes", Value: fmt.Sprintf("`%d`", upvotes), Inline: true},
			{Name: "👎 Downvotes", Value: fmt.Sprintf("`%d`", downvotes), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Voting will close in %s.", votingPeriodText(votingPeriod)),
		},
	}
}

func pollButtons(threadID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "👍",
					Style:    discordgo.SuccessButton,
					CustomID: proposalVoteCustomID(voteUp, threadID),
				},
				discordgo.Button{
					Label:    "👎",
					Style:    discordgo.DangerButton,
					CustomID: proposalVoteCustomID(voteDown, threadID),
				},
			},
		},
	}
}

func proposalClosedEmbed(p *Proposal) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Proposal Closed",
		Description: "Voting has ended for this proposal.",
		Color:       colorHangarOff,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Upvotes", Value: fmt.Sprintf("`%d`", len(p.Votes.Upvotes)), Inline: true},
			{Name: "Downvotes", Value: fmt.Sprintf("`%d`", len(p.Votes.Downvotes)), Inline: true},
		},
	}
}

func (q *Qadir) handlePropose(ctx context.Context, h InteractionHandler) error {
	return respondModal(
		ctx,
		h,
		customIDProposalCreate,
		"Create a Proposal",
		discordgo.TextInput{
			CustomID:  proposalInputTitle,
			Label:     "Title",
			Style:     discordgo.TextInputShort,
			Required:  true,
			MaxLength: 64,
		},
		discordgo.TextInput{
			CustomID:  proposalInputSummary,
			Label:     "Summary",
			Style:     discordgo.TextInputParagraph,
			Required:  true,
			MaxLength: 2048,
		},
		discordgo.TextInput{
			CustomID:  proposalInputReasoning,
			Label:     "Reasoning",
			Style:     discordgo.TextInputParagraph,
			Required:  true,
			MaxLength: 2048,
		},
		discordgo.TextInput{
			CustomID:  proposalInputOutcome,
			Label:     "Expected Outcome",
			Style:     discordgo.TextInputParagraph,
			Required:  true,
			MaxLength: 2048,
		},
	)
}

// handleProposalSubmit creates the proposal thread with its poll and
// persists the proposal
func (q *Qadir) handleProposalSubmit(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	logger := h.Logger()
	user := getDiscordUser(i)
	values := modalValues(i.ModalSubmitData())

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}
	if len(q.config.Proposals.Channels) == 0 {
		return userError(nil, "", "No proposals channel is configured.")
	}
	channelID := q.config.Proposals.Channels[0]

	// numbering depends on the count, so submissions are serialized
	unlock := q.locks.Lock(customIDProposalCreate)
	defer unlock()

	count, err := q.store.CountProposals(ctx)
	if err != nil {
		return fmt.Errorf("error counting proposals: %w", err)
	}
	title := fmt.Sprintf("Proposal #%d - %s", count+1, values[proposalInputTitle])

	thread, err := q.discord.session.ThreadStart(
		channelID,
		truncate(title, 100),
		discordgo.ChannelTypeGuildPublicThread,
		proposalThreadArchiveMinutes,
	)
	if err != nil {
		return userError(err, "", "Failed to create the proposal thread. Are you sure I have permissions?")
	}

	outcome := &discordgo.MessageEmbed{
		Title:       "Expected Outcome",
		Description: values[proposalInputOutcome],
		Footer: &discordgo.MessageEmbedFooter{
			Text:    user.Username,
			IconURL: user.AvatarURL(""),
		},
	}
	messages := []*discordgo.MessageSend{
		{Embeds: []*discordgo.MessageEmbed{{Title: title, Description: values[proposalInputSummary]}}},
		{Embeds: []*discordgo.MessageEmbed{{Title: "Reasoning", Description: values[proposalInputReasoning]}}},
		{Embeds: []*discordgo.MessageEmbed{outcome}},
		{Embeds: []*discordgo.MessageEmbed{pollEmbed(0, 0, q.config.Proposals.VotingPeriod)}, Components: pollButtons(thread.ID)},
	}
	var poll *discordgo.Message
	for _, m := range messages {
		poll, err = q.discord.session.ChannelMessageSendComplex(thread.ID, m)
		if err != nil {
			return fmt.Errorf("error posting proposal: %w", err)
		}
	}

	proposal := &Proposal{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		MessageID: poll.ID,
		CreatorID: user.ID,
		Title:     values[proposalInputTitle],
		CreatedAt: q.now().UTC(),
		Status:    ProposalStatusActive,
		Votes:     Votes{Upvotes: []string{}, Downvotes: []string{}},
	}
	if err = q.store.CreateProposal(ctx, proposal); err != nil {
		return fmt.Errorf("error saving proposal: %w", err)
	}

	logger.InfoContext(ctx, "created proposal", "thread_id", thread.ID, "title", title)
	return respondEmbed(
		ctx,
		h,
		true,
		successEmbed("Proposal Created", "Your proposal has been created in "+channelMention(thread.ID)+"."),
	)
}

// vote toggles userID's vote on the proposal in threadID, and returns
// the updated proposal and whether the vote was added
func (q *Qadir) vote(ctx context.Context, threadID string, userID string, upvote bool) (*Proposal, bool, error) {
	unlock := q.locks.Lock("proposal:" + threadID)
	defer unlock()

	proposal, err := q.store.ProposalByThread(ctx, threadID)
	if err != nil {
		return nil, false, err
	}
	if proposal.Status != ProposalStatusActive {
		return proposal, false, ErrProposalClosed
	}
	added := proposal.Votes.Toggle(userID, upvote)
	if err = q.store.SaveProposal(ctx, proposal); err != nil {
		return proposal, false, err
	}
	return proposal, added, nil
}

// handleProposalVote handles a poll button press
func (q *Qadir) handleProposalVote(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	user := getDiscordUser(i)

	upvote, threadID, err := parseProposalVoteCustomID(i.MessageComponentData().CustomID)
	if err != nil {
		return err
	}

	proposal, added, err := q.vote(ctx, threadID, user.ID, upvote)
	switch {
	case errors.Is(err, ErrNotFound):
		return userError(err, "", "This proposal could not be found.")
	case errors.Is(err, ErrProposalClosed):
		return userError(err, "Proposal Closed", "Voting has ended for this proposal.")
	case err != nil:
		return err
	}

	poll := pollEmbed(len(proposal.Votes.Upvotes), len(proposal.Votes.Downvotes), q.config.Proposals.VotingPeriod)
	_, err = q.discord.session.ChannelMessageEditComplex(
		discordgo.NewMessageEdit(proposal.ThreadID, proposal.MessageID).SetEmbeds(
			[]*discordgo.MessageEmbed{poll},
		),
	)
	if err != nil {
		h.Logger().ErrorContext(ctx, "error updating poll", "thread_id", threadID, tint.Err(err))
	}

	var action string
	switch {
	case upvote && added:
		action = "upvoted this proposal 👍"
	case upvote:
		action = "removed your upvote for this proposal 🚫"
	case added:
		action = "downvoted this proposal 👎"
	default:
		action = "removed your downvote for this proposal 🚫"
	}
	return respondEmbed(ctx, h, true, successEmbed("", "You "+action))
}

// closeProposal posts the result in the proposal thread, locks it and
// marks the proposal closed. A missing thread still closes the proposal.
func (q *Qadir) closeProposal(ctx context.Context, p *Proposal) error {
	logger := q.logger.With("thread_id", p.ThreadID, "proposal_id", p.ID)

	unlock := q.locks.Lock("proposal:" + p.ThreadID)
	defer unlock()

	_, err := q.discord.session.ChannelMessageSendComplex(
		p.ThreadID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{proposalClosedEmbed(p)}},
	)
	switch {
	case isDiscordNotFound(err):
		logger.WarnContext(ctx, "proposal thread not found")
	case err != nil:
		return err
	default:
		// the result is posted, so a failed lock doesn't keep it active
		locked := true
		if _, err = q.discord.session.ChannelEdit(
			p.ThreadID,
			&discordgo.ChannelEdit{Locked: &locked},
		); err != nil {
			logger.WarnContext(ctx, "error locking proposal thread", tint.Err(err))
		}
	}

	p.Status = ProposalStatusClosed
	if err = q.store.SaveProposal(ctx, p); err != nil {
		return err
	}
	logger.InfoContext(
		ctx,
		"closed proposal",
		"upvotes", len(p.Votes.Upvotes),
		"downvotes", len(p.Votes.Downvotes),
	)
	return nil
}

// processProposals closes every active proposal whose voting period
// has ended, returning the number closed
func (q *Qadir) processProposals(ctx context.Context) int {
	cutoff := q.now().UTC().Add(-q.config.Proposals.VotingPeriod)
	proposals, err := q.store.ActiveProposalsBefore(ctx, cutoff)
	if err != nil {
		q.logger.ErrorContext(ctx, "error loading proposals", tint.Err(err))
		return 0
	}
	if len(proposals) == 0 {
		q.logger.InfoContext(ctx, "no proposals to process")
		return 0
	}

	closed := 0
	for _, p := range proposals {
		if err = q.closeProposal(ctx, p); err != nil {
			q.logger.ErrorContext(ctx, "error processing proposal", "thread_id", p.ThreadID, tint.Err(err))
			continue
		}
		closed++
		q.metrics.proposalsClosed.Inc()
	}
	q.logger.InfoContext(ctx, "processed proposals", "count", len(proposals), "closed", closed)
	return closed
}

// runProposalLoop closes expired proposals every check interval, until
// ctx is done
func (q *Qadir) runProposalLoop(ctx context.Context) {
	if err := q.WaitUntilInitialised(ctx); err != nil {
		return
	}
	interval := q.config.Proposals.CheckInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		q.processProposals(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

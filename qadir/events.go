package qadir

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"slices"
	"strings"
	"time"
)

const (
	customIDEventCreate     = "event_create"
	customIDEventJoinSelect = "event_join_select"

	eventInputName        = "name"
	eventInputDescription = "description"

	eventOptionItem     = "item"
	eventOptionQuantity = "quantity"

	// maxLootQuantity is the exclusive upper bound for a single loot entry
	maxLootQuantity = 1_000_000_000

	// Discord caps select menus and autocomplete results at 25 entries
	maxSelectOptions = 25

	eventThreadArchiveMinutes = 10080
)

var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrNotParticipant     = errors.New("not a participant")
	ErrEventNotActive     = errors.New("event is not active")
	ErrAlreadyParticipant = errors.New("already a participant")
	ErrNotCreator         = errors.New("not the event creator")
)

// Join adds userID to the event's participants
func (e *Event) Join(userID string) error {
	if e.Status != EventStatusActive {
		return ErrEventNotActive
	}
	if !e.AddParticipant(userID) {
		return ErrAlreadyParticipant
	}
	return nil
}

// AddLoot appends a loot entry for userID. The user must already be a
// participant, and quantity must be in (0, 1,000,000,000).
func (e *Event) AddLoot(item LootItem, quantity int64, userID string, at time.Time) error {
	if e.Status != EventStatusActive {
		return ErrEventNotActive
	}
	if !e.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if quantity <= 0 || quantity >= maxLootQuantity {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	e.LootEntries = append(
		e.LootEntries,
		LootEntry{Item: item, Quantity: quantity, AddedBy: userID, AddedAt: at},
	)
	return nil
}

// Finalise marks the event completed. Only the creator may finalise.
func (e *Event) Finalise(userID string) error {
	if userID != e.CreatorID {
		return ErrNotCreator
	}
	if e.Status != EventStatusActive {
		return ErrEventNotActive
	}
	e.Status = EventStatusCompleted
	return nil
}

// TotalItems is the number of distinct item IDs looted
func (e *Event) TotalItems() int {
	seen := map[string]struct{}{}
	for _, entry := range e.LootEntries {
		seen[entry.Item.ID] = struct{}{}
	}
	return len(seen)
}

type lootTotal struct {
	name     string
	quantity int64
}

// lootTotals aggregates entries by item ID, in order of first appearance
func lootTotals(entries []LootEntry) []*lootTotal {
	var totals []*lootTotal
	byID := map[string]*lootTotal{}
	for _, entry := range entries {
		t, ok := byID[entry.Item.ID]
		if !ok {
			t = &lootTotal{name: entry.Item.Name}
			byID[entry.Item.ID] = t
			totals = append(totals, t)
		}
		t.quantity += entry.Quantity
	}
	return totals
}

// LootBreakdown renders each participant's aggregated loot, one line
// per user, sorted by user ID
func (e *Event) LootBreakdown() string {
	if len(e.LootEntries) == 0 {
		return "*No loot added yet - use `/event loot` to contribute!*"
	}

	byUser := map[string][]LootEntry{}
	for _, entry := range e.LootEntries {
		byUser[entry.AddedBy] = append(byUser[entry.AddedBy], entry)
	}
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	slices.Sort(users)

	lines := make([]string, 0, len(users))
	for _, u := range users {
		var items []string
		for _, t := range lootTotals(byUser[u]) {
			items = append(items, fmt.Sprintf("`%dx %s`", t.quantity, t.name))
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", mention(u), strings.Join(items, ", ")))
	}
	return strings.Join(lines, "\n")
}

// LootDistribution renders the even split of each item across all
// participants
func (e *Event) LootDistribution() string {
	if len(e.LootEntries) == 0 || len(e.Participants) == 0 {
		return "*Distribution will be calculated once loot is added.*"
	}

	n := int64(len(e.Participants))
	var lines []string
	for _, t := range lootTotals(e.LootEntries) {
		line := fmt.Sprintf("**%dx %s** → %d each", t.quantity, t.name, t.quantity/n)
		if extra := t.quantity % n; extra > 0 {
			line += fmt.Sprintf(" + %d extra", extra)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (e *Event) statusEmoji() string {
	if e.Status == EventStatusActive {
		return "🟢"
	}
	return "🔴"
}

// Card renders the live event card. creator is shown in the footer.
func (e *Event) Card(creator *discordgo.User, now time.Time) *discordgo.MessageEmbed {
	color := colorGreen
	if e.Status != EventStatusActive {
		color = colorRed
	}

	participants := make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		participants = append(participants, mention(p))
	}
	status := string(e.Status)
	if status != "" {
		status = strings.ToUpper(status[:1]) + status[1:]
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Event: " + e.Name,
		Description: e.Description,
		Color:       color,
		Timestamp:   embedTimestamp(now),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: fmt.Sprintf("%s `%s`", e.statusEmoji(), status), Inline: true},
			{Name: "Total Participants", Value: fmt.Sprintf("`%d`", len(e.Participants)), Inline: true},
			{Name: "Total Items", Value: fmt.Sprintf("`%d`", e.TotalItems()), Inline: true},
			{Name: "Participants", Value: truncate(strings.Join(participants, ", "), discordEmbedFieldMaxLength)},
			{Name: "Loot Breakdown", Value: truncate(e.LootBreakdown(), discordEmbedFieldMaxLength)},
			{Name: "Distribution Preview", Value: truncate(e.LootDistribution(), discordEmbedFieldMaxLength)},
		},
	}
	if creator != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    "Created by " + creator.Username,
			IconURL: creator.AvatarURL(""),
		}
	}
	return embed
}

func eventInstructionsEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Participate",
		Description: "• Check the event card above for current totals and distribution\n" +
			"• Use `/event join` to join this event\n" +
			"• Use `/event loot` to add items you've collected\n" +
			"• Event creator can use `/event finalise` to finalise the event",
		Color: colorBlue,
	}
}

func (q *Qadir) eventCacheKey(threadID string) string {
	return q.cache.Key(cacheKeyEvents, threadID)
}

// getEvent returns the event bound to threadID, from the cache if
// possible. ErrNotFound is returned if the thread has no event.
func (q *Qadir) getEvent(ctx context.Context, threadID string) (*Event, error) {
	key := q.eventCacheKey(threadID)
	event := &Event{}
	err := q.cache.GetJSON(ctx, key, event)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		q.logger.WarnContext(ctx, "error reading event cache", "thread_id", threadID, tint.Err(err))
	}

	event, err = q.store.EventByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err = q.cache.SetJSON(ctx, key, event, q.config.Events.CacheTTL); err != nil {
		q.logger.WarnContext(ctx, "error caching event", "thread_id", threadID, tint.Err(err))
	}
	return event, nil
}

// saveEvent persists event and drops its cache entry
func (q *Qadir) saveEvent(ctx context.Context, event *Event) error {
	if err := q.store.SaveEvent(ctx, event); err != nil {
		return err
	}
	if err := q.cache.Delete(ctx, q.eventCacheKey(event.ThreadID)); err != nil {
		q.logger.WarnContext(ctx, "error invalidating event cache", "thread_id", event.ThreadID, tint.Err(err))
	}
	return nil
}

// updateEventCard re-renders the event card message. Failures are
// logged, the event itself is already saved.
func (q *Qadir) updateEventCard(ctx context.Context, event *Event) {
	logger := q.logger.With("thread_id", event.ThreadID, "event", event.Name)

	creator, err := q.discord.session.User(event.CreatorID)
	if err != nil {
		logger.WarnContext(ctx, "error fetching event creator", tint.Err(err))
		creator = &discordgo.User{ID: event.CreatorID, Username: event.CreatorID}
	}

	_, err = q.discord.session.ChannelMessageEditComplex(
		discordgo.NewMessageEdit(event.ThreadID, event.MessageID).SetEmbeds(
			[]*discordgo.MessageEmbed{event.Card(creator, q.now()), eventInstructionsEmbed()},
		),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error updating event card", tint.Err(err))
		return
	}
	logger.InfoContext(ctx, "updated event card")
}

func (q *Qadir) eventChannelsList() string {
	channels := make([]string, 0, len(q.config.Events.Channels))
	for _, c := range q.config.Events.Channels {
		channels = append(channels, channelMention(c))
	}
	return strings.Join(channels, ", ")
}

func (q *Qadir) eventHomeChannel() string {
	if len(q.config.Events.Channels) == 0 {
		return "an events channel"
	}
	return channelMention(q.config.Events.Channels[0])
}

func (q *Qadir) notInEventThreadError() error {
	return userError(
		nil,
		"Not In Event Thread",
		"This command can only be used in event threads.\n\n"+
			"**To add loot:**\n"+
			"1. Use `/event create` to create an event or `/event join` to join an event\n"+
			"2. Go to the event thread\n"+
			"3. Use `/event loot` in that thread\n\n"+
			"**Find or create events in:** "+q.eventHomeChannel(),
	)
}

// handleEvent dispatches the /event subcommands
func (q *Qadir) handleEvent(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	switch sub := subcommandName(i); sub {
	case "create":
		return q.handleEventCreate(ctx, h)
	case "join":
		return q.handleEventJoin(ctx, h)
	case "loot":
		return q.handleEventLoot(ctx, h)
	case "finalise":
		return q.handleEventFinalise(ctx, h)
	case "list":
		return q.handleEventList(ctx, h)
	default:
		return fmt.Errorf("unknown event subcommand %q", sub)
	}
}

func (q *Qadir) handleEventCreate(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	if !slices.Contains(q.config.Events.Channels, i.ChannelID) {
		if len(q.config.Events.Channels) == 0 {
			return userError(nil, "", "No event channels are configured.")
		}
		return userError(
			nil,
			"",
			"This command can only be used in: "+q.eventChannelsList(),
		)
	}
	return respondModal(
		ctx,
		h,
		customIDEventCreate,
		"Create Loot Event",
		discordgo.TextInput{
			CustomID:  eventInputName,
			Label:     "Event Name",
			Style:     discordgo.TextInputShort,
			Required:  true,
			MaxLength: 100,
		},
		discordgo.TextInput{
			CustomID:  eventInputDescription,
			Label:     "Description",
			Style:     discordgo.TextInputParagraph,
			Required:  false,
			MaxLength: 2048,
		},
	)
}

// handleEventCreateSubmit creates the event thread, posts the card and
// persists the event. The creator is the first participant.
func (q *Qadir) handleEventCreateSubmit(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	logger := h.Logger()
	user := getDiscordUser(i)
	values := modalValues(i.ModalSubmitData())

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	channel, err := q.discord.session.Channel(i.ChannelID)
	if err != nil {
		return fmt.Errorf("error fetching channel: %w", err)
	}
	if channel.Type != discordgo.ChannelTypeGuildText {
		return userError(nil, "Invalid Channel", "Please use this command in a text channel.")
	}

	name := values[eventInputName]
	if name == "" {
		return userError(nil, "Invalid Name", "Please enter a name for the event.")
	}

	thread, err := q.discord.session.ThreadStart(
		i.ChannelID,
		truncate("🏆 "+name, 100),
		discordgo.ChannelTypeGuildPublicThread,
		eventThreadArchiveMinutes,
	)
	if err != nil {
		return userError(err, "", "Failed to create the event thread. Are you sure I have permissions?")
	}

	event := &Event{
		ID:           uuid.NewString(),
		ThreadID:     thread.ID,
		CreatorID:    user.ID,
		CreatedAt:    q.now().UTC(),
		Name:         name,
		Description:  values[eventInputDescription],
		Status:       EventStatusActive,
		Participants: []string{user.ID},
		LootEntries:  []LootEntry{},
	}

	msg, err := q.discord.session.ChannelMessageSendComplex(
		thread.ID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{event.Card(user, q.now()), eventInstructionsEmbed()},
		},
	)
	if err != nil {
		return fmt.Errorf("error sending event card: %w", err)
	}
	event.MessageID = msg.ID

	if err = q.store.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("error saving event: %w", err)
	}
	if err = q.cache.SetJSON(ctx, q.eventCacheKey(thread.ID), event, q.config.Events.CacheTTL); err != nil {
		logger.WarnContext(ctx, "error caching event", tint.Err(err))
	}

	logger.InfoContext(ctx, "created event", "thread_id", thread.ID, "event", name)
	return respondEmbed(
		ctx,
		h,
		true,
		successEmbed(
			"",
			fmt.Sprintf(
				"Event **%s** has been created in %s!\nYou've been automatically added as a participant.",
				name,
				channelMention(thread.ID),
			),
		),
	)
}

// joinEvent adds userID to the event in threadID and refreshes its card
func (q *Qadir) joinEvent(ctx context.Context, threadID string, userID string) (*Event, error) {
	unlock := q.locks.Lock(q.eventCacheKey(threadID))
	defer unlock()

	event, err := q.getEvent(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err = event.Join(userID); err != nil {
		return event, err
	}
	if err = q.saveEvent(ctx, event); err != nil {
		return event, err
	}
	q.updateEventCard(ctx, event)
	return event, nil
}

func (q *Qadir) handleEventJoin(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	user := getDiscordUser(i)

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	event, err := q.joinEvent(ctx, i.ChannelID, user.ID)
	switch {
	case err == nil:
		return respondEmbed(
			ctx,
			h,
			true,
			successEmbed(
				"🎉 Successfully Joined Event!",
				fmt.Sprintf(
					"Welcome to **%s**!\n\n**You can now:**\n"+
						"• Use `/event loot` in this thread to add items\n"+
						"• Check the event card above for current totals",
					event.Name,
				),
			),
		)
	case errors.Is(err, ErrAlreadyParticipant):
		return respondEmbed(
			ctx,
			h,
			true,
			successEmbed(
				"Already Participating",
				fmt.Sprintf(
					"You're already participating in **%s**!\n\n**You can now:**\n"+
						"• Use `/event loot` to add items you've collected\n"+
						"• Check the event card above for current totals",
					event.Name,
				),
			),
		)
	case errors.Is(err, ErrEventNotActive):
		return userError(err, "Event Inactive", fmt.Sprintf("This event is %s and can no longer be joined.", event.Status))
	case !errors.Is(err, ErrNotFound):
		return err
	}

	// not in an event thread, offer the active events instead
	active, err := q.store.ListEvents(ctx, EventStatusActive)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return userError(
			nil,
			"No Active Events",
			"There are no active events to join right now.\n\n"+
				"**Want to create an event?**\n"+
				"Use `/event create` in "+q.eventHomeChannel(),
		)
	}

	joinable := slices.ContainsFunc(active, func(e *Event) bool { return !e.IsParticipant(user.ID) })
	if !joinable {
		lines := make([]string, 0, len(active))
		for _, e := range active {
			lines = append(lines, fmt.Sprintf("• 🏆 **%s**", e.Name))
		}
		return respondEmbed(
			ctx,
			h,
			true,
			successEmbed(
				"Already Participating",
				"You're already participating in all active events:\n\n"+strings.Join(lines, "\n"),
			),
		)
	}

	_, err = h.Followup(
		ctx,
		&discordgo.WebhookParams{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				successEmbed("🏆 Join an Event", "Select an event to join from the dropdown below:"),
			},
			Components: []discordgo.MessageComponent{eventSelectMenu(active, user.ID)},
		},
	)
	return err
}

// eventSelectMenu lists events for joining, marking the ones userID is
// already in. Joinable events are listed first.
func eventSelectMenu(events []*Event, userID string) discordgo.ActionsRow {
	events = slices.Clone(events)
	slices.SortStableFunc(
		events, func(a, b *Event) int {
			aJoined, bJoined := a.IsParticipant(userID), b.IsParticipant(userID)
			switch {
			case aJoined == bJoined:
				return 0
			case bJoined:
				return -1
			default:
				return 1
			}
		},
	)
	if len(events) > maxSelectOptions {
		events = events[:maxSelectOptions]
	}
	options := make([]discordgo.SelectOption, 0, len(events))
	for _, e := range events {
		joined := fmt.Sprintf("%d participants", len(e.Participants))
		if e.IsParticipant(userID) {
			joined = "Already joined"
		}
		options = append(
			options,
			discordgo.SelectOption{
				Label:       truncate(e.Name, 100),
				Value:       e.ThreadID,
				Description: truncate(fmt.Sprintf("%s • %d items", joined, len(e.LootEntries)), 100),
			},
		)
	}
	minValues := 1
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    customIDEventJoinSelect,
				Placeholder: "Choose an event to join...",
				MinValues:   &minValues,
				MaxValues:   1,
				Options:     options,
			},
		},
	}
}

// handleEventJoinSelect handles a selection from the event select menu
func (q *Qadir) handleEventJoinSelect(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	user := getDiscordUser(i)

	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return userError(nil, "", "No event selected.")
	}

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	event, err := q.joinEvent(ctx, values[0], user.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return respondContent(ctx, h, true, "❌ Event not found.")
	case errors.Is(err, ErrAlreadyParticipant):
		return respondContent(ctx, h, true, "✅ You're already participating in this event!")
	case errors.Is(err, ErrEventNotActive):
		return respondContent(ctx, h, true, "❌ This event is no longer active.")
	case err != nil:
		return err
	}
	return respondContent(
		ctx,
		h,
		true,
		fmt.Sprintf("🎉 Successfully joined **%s**!\nYou can now add loot items to this event.", event.Name),
	)
}

func (q *Qadir) handleEventLoot(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	user := getDiscordUser(i)
	opts := discordInteractionOptions(i)

	var itemID string
	var quantity int64
	if opt, ok := opts[eventOptionItem]; ok {
		itemID = opt.StringValue()
	}
	if opt, ok := opts[eventOptionQuantity]; ok {
		quantity = opt.IntValue()
	}

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	items, err := q.cache.Items(ctx)
	if err != nil {
		return fmt.Errorf("error loading item catalogue: %w", err)
	}
	if len(items) == 0 {
		return userError(
			nil,
			"No Items Configured",
			"No items are configured for loot tracking. Please contact an administrator.",
		)
	}
	idx := slices.IndexFunc(items, func(it LootItem) bool { return it.ID == itemID })
	if idx < 0 {
		return userError(nil, "Not Found", "The selected item was not found.")
	}
	item := items[idx]

	unlock := q.locks.Lock(q.eventCacheKey(i.ChannelID))
	defer unlock()

	event, err := q.getEvent(ctx, i.ChannelID)
	if errors.Is(err, ErrNotFound) {
		return q.notInEventThreadError()
	}
	if err != nil {
		return err
	}

	err = event.AddLoot(item, quantity, user.ID, q.now().UTC())
	switch {
	case errors.Is(err, ErrNotParticipant):
		return userError(
			err,
			"Not Participating",
			"You must join this event before adding loot.\nUse `/event join` to join this event.",
		)
	case errors.Is(err, ErrEventNotActive):
		return userError(
			err,
			"Event Inactive",
			fmt.Sprintf("This event is %s and no longer accepts loot additions.", event.Status),
		)
	case errors.Is(err, ErrInvalidQuantity):
		return userError(err, "Invalid Quantity", "Please enter a positive number between `1` and `1,000,000,000`.")
	case err != nil:
		return err
	}

	if err = q.saveEvent(ctx, event); err != nil {
		return err
	}
	q.updateEventCard(ctx, event)

	h.Logger().InfoContext(ctx, "added loot", "thread_id", event.ThreadID, "item", item.ID, "quantity", quantity)
	return respondEmbed(
		ctx,
		h,
		true,
		successEmbed("Loot Added", fmt.Sprintf("Added `%dx %s` to the event loot", quantity, item.Name)),
	)
}

// handleEventLootAutocomplete suggests catalogue items whose name
// contains the partially typed value
func (q *Qadir) handleEventLootAutocomplete(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	var typed string
	for name, opt := range discordInteractionOptions(i) {
		if name == eventOptionItem && opt.Focused {
			typed = strings.ToLower(opt.StringValue())
		}
	}

	items, err := q.cache.Items(ctx)
	if err != nil {
		return err
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxSelectOptions)
	for _, item := range items {
		if len(choices) == maxSelectOptions {
			break
		}
		if typed != "" &&
			!strings.Contains(strings.ToLower(item.Name), typed) &&
			!strings.Contains(strings.ToLower(item.ID), typed) {
			continue
		}
		choices = append(
			choices,
			&discordgo.ApplicationCommandOptionChoice{Name: truncate(item.Name, 100), Value: item.ID},
		)
	}

	return h.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: choices},
		},
	)
}

func (q *Qadir) handleEventFinalise(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	user := getDiscordUser(i)

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	unlock := q.locks.Lock(q.eventCacheKey(i.ChannelID))
	defer unlock()

	event, err := q.getEvent(ctx, i.ChannelID)
	if errors.Is(err, ErrNotFound) {
		return userError(err, "", "This thread is not associated with an active event.")
	}
	if err != nil {
		return err
	}

	err = event.Finalise(user.ID)
	switch {
	case errors.Is(err, ErrNotCreator):
		return userError(
			err,
			"Permission Denied",
			fmt.Sprintf(
				"Only the event creator can finalise the event.\n\nEvent creator: %s\nYou are: %s",
				mention(event.CreatorID),
				mention(user.ID),
			),
		)
	case errors.Is(err, ErrEventNotActive):
		return userError(err, "", fmt.Sprintf("This event is already %s.", event.Status))
	case err != nil:
		return err
	}

	if err = q.saveEvent(ctx, event); err != nil {
		return err
	}
	q.updateEventCard(ctx, event)

	err = respondEmbed(
		ctx,
		h,
		true,
		&discordgo.MessageEmbed{
			Title: "Event Finalised",
			Description: fmt.Sprintf(
				"**%s** has concluded.\nA summary can be found in %s.",
				event.Name,
				channelMention(event.ThreadID),
			),
			Color:  colorGold,
			Footer: &discordgo.MessageEmbedFooter{Text: "The event has been locked. No more changes can be made"},
		},
	)
	if err != nil {
		return err
	}

	locked := true
	if _, err = q.discord.session.ChannelEdit(event.ThreadID, &discordgo.ChannelEdit{Locked: &locked}); err != nil {
		h.Logger().ErrorContext(ctx, "error locking event thread", "thread_id", event.ThreadID, tint.Err(err))
	}
	h.Logger().InfoContext(ctx, "finalised event", "thread_id", event.ThreadID, "event", event.Name)
	return nil
}

func (q *Qadir) handleEventList(ctx context.Context, h InteractionHandler) error {
	user := getDiscordUser(h.GetInteraction())

	if err := deferResponse(ctx, h, true); err != nil {
		return err
	}

	events, err := q.store.EventsByCreator(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return userError(nil, "", "You haven't created any active events.")
	}

	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(
			lines,
			fmt.Sprintf(
				"%s **%s** (`%d` %s, `%d` %s)",
				e.statusEmoji(),
				e.Name,
				len(e.Participants),
				pluralize(len(e.Participants), "participant"),
				len(e.LootEntries),
				pluralize(len(e.LootEntries), "item"),
			),
		)
	}
	return respondEmbed(
		ctx,
		h,
		true,
		successEmbed("Your Events", truncate(strings.Join(lines, "\n"), 4096)),
	)
}

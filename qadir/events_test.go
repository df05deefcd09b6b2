package qadir

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var (
	itemGold   = LootItem{ID: "gold", Name: "Gold"}
	itemSilver = LootItem{ID: "silver", Name: "Silver"}
)

func newActiveEvent(creatorID string, participants ...string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		ThreadID:     "thread-" + uuid.NewString()[:8],
		CreatorID:    creatorID,
		CreatedAt:    testNow,
		Name:         "Raid",
		Status:       EventStatusActive,
		Participants: append([]string{creatorID}, participants...),
		LootEntries:  []LootEntry{},
	}
}

// createTestEvent persists an event, as if posted with /event create
func createTestEvent(t testing.TB, q *Qadir, e *Event) *Event {
	t.Helper()
	e.MessageID = "card-" + e.ThreadID
	require.NoError(t, q.store.CreateEvent(context.Background(), e))
	return e
}

func TestEvent_Join(t *testing.T) {
	e := newActiveEvent("1")
	require.NoError(t, e.Join("2"))
	assert.Equal(t, []string{"1", "2"}, e.Participants)
	assert.ErrorIs(t, e.Join("2"), ErrAlreadyParticipant)

	e.Status = EventStatusCompleted
	assert.ErrorIs(t, e.Join("3"), ErrEventNotActive)
}

func TestEvent_AddLoot(t *testing.T) {
	testCases := []struct {
		name     string
		userID   string
		quantity int64
		status   EventStatus
		wantErr  error
	}{
		{name: "valid", userID: "1", quantity: 5, status: EventStatusActive},
		{name: "upper bound", userID: "1", quantity: maxLootQuantity - 1, status: EventStatusActive},
		{name: "zero", userID: "1", quantity: 0, status: EventStatusActive, wantErr: ErrInvalidQuantity},
		{name: "negative", userID: "1", quantity: -3, status: EventStatusActive, wantErr: ErrInvalidQuantity},
		{name: "too many", userID: "1", quantity: maxLootQuantity, status: EventStatusActive, wantErr: ErrInvalidQuantity},
		{name: "not participant", userID: "2", quantity: 1, status: EventStatusActive, wantErr: ErrNotParticipant},
		{name: "completed", userID: "1", quantity: 1, status: EventStatusCompleted, wantErr: ErrEventNotActive},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				e := newActiveEvent("1")
				e.Status = tc.status
				err := e.AddLoot(itemGold, tc.quantity, tc.userID, testNow)
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
					assert.Empty(t, e.LootEntries)
					return
				}
				require.NoError(t, err)
				require.Len(t, e.LootEntries, 1)
				assert.Equal(t, tc.quantity, e.LootEntries[0].Quantity)
				assert.Equal(t, tc.userID, e.LootEntries[0].AddedBy)
			},
		)
	}
}

func TestEvent_Finalise(t *testing.T) {
	e := newActiveEvent("1", "2")
	assert.ErrorIs(t, e.Finalise("2"), ErrNotCreator)
	require.NoError(t, e.Finalise("1"))
	assert.Equal(t, EventStatusCompleted, e.Status)
	assert.ErrorIs(t, e.Finalise("1"), ErrEventNotActive)
}

func TestEvent_LootSummaries(t *testing.T) {
	e := newActiveEvent("1", "2")
	assert.Equal(t, "*No loot added yet - use `/event loot` to contribute!*", e.LootBreakdown())
	assert.Equal(t, "*Distribution will be calculated once loot is added.*", e.LootDistribution())
	assert.Equal(t, 0, e.TotalItems())

	require.NoError(t, e.AddLoot(itemGold, 5, "2", testNow))
	require.NoError(t, e.AddLoot(itemGold, 3, "1", testNow))
	require.NoError(t, e.AddLoot(itemSilver, 2, "1", testNow))
	require.NoError(t, e.AddLoot(itemGold, 1, "1", testNow))

	assert.Equal(t, 2, e.TotalItems())
	assert.Equal(
		t,
		"**<@1>**: `4x Gold`, `2x Silver`\n**<@2>**: `5x Gold`",
		e.LootBreakdown(),
	)
	assert.Equal(
		t,
		"**9x Gold** → 4 each + 1 extra\n**2x Silver** → 1 each",
		e.LootDistribution(),
	)
}

func TestEvent_Card(t *testing.T) {
	e := newActiveEvent("1", "2")
	e.Description = "Pirate swarm"
	require.NoError(t, e.AddLoot(itemGold, 2, "2", testNow))

	card := e.Card(newTestUser("1"), testNow)
	assert.Equal(t, "Event: Raid", card.Title)
	assert.Equal(t, "Pirate swarm", card.Description)
	assert.Equal(t, colorGreen, card.Color)
	require.Len(t, card.Fields, 6)
	assert.Equal(t, "🟢 `Active`", card.Fields[0].Value)
	assert.Equal(t, "`2`", card.Fields[1].Value)
	assert.Equal(t, "`1`", card.Fields[2].Value)
	assert.Equal(t, "<@1>, <@2>", card.Fields[3].Value)
	assert.Equal(t, "**2x Gold** → 1 each", card.Fields[5].Value)
	assert.Equal(t, "Created by user1", card.Footer.Text)

	require.NoError(t, e.Finalise("1"))
	card = e.Card(nil, testNow)
	assert.Equal(t, colorRed, card.Color)
	assert.Equal(t, "🔴 `Completed`", card.Fields[0].Value)
	assert.Nil(t, card.Footer)
}

func TestHandleEventCreate_ChannelRestricted(t *testing.T) {
	q, session, _ := newTestQadir(
		t, func(cfg *Config) {
			cfg.Events.Channels = []string{"events"}
		},
	)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction("general", newTestUser("1"), commandEvent, subcommandOption("create")),
	)
	embed := session.lastEmbed(t)
	assert.Equal(t, "This command can only be used in: <#events>", embed.Description)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction("events", newTestUser("1"), commandEvent, subcommandOption("create")),
	)
	r := session.lastReply(t)
	assert.Equal(t, discordgo.InteractionResponseModal, r.Type)
	assert.Equal(t, customIDEventCreate, r.Data.CustomID)
	assert.Len(t, r.Data.Components, 2)
}

func TestHandleEventCreate_NoChannelsConfigured(t *testing.T) {
	q, session, _ := newTestQadir(t)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandEvent, subcommandOption("create")),
	)
	assert.Equal(t, "No event channels are configured.", session.lastEmbed(t).Description)
	assert.NotEqual(t, discordgo.InteractionResponseModal, session.lastReply(t).Type)
}

func TestHandleEventCreateSubmit(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	session.channels["events"] = &discordgo.Channel{ID: "events", Type: discordgo.ChannelTypeGuildText}

	dispatch(
		ctx,
		q,
		newModalInteraction(
			"events",
			newTestUser("1"),
			customIDEventCreate,
			map[string]string{eventInputName: " Mining Op ", eventInputDescription: "Quantanium run"},
		),
	)

	require.Len(t, session.threads, 1)
	thread := session.threads[0]
	assert.Equal(t, "events", thread.ChannelID)
	assert.Equal(t, "🏆 Mining Op", thread.Name)
	assert.Equal(t, discordgo.ChannelTypeGuildPublicThread, thread.Type)
	assert.Equal(t, eventThreadArchiveMinutes, thread.Archive)

	require.Len(t, session.sent, 1)
	threadID := session.sent[0].ChannelID
	card := session.sent[0].Data.Embeds
	require.Len(t, card, 2)
	assert.Equal(t, "Event: Mining Op", card[0].Title)
	assert.Equal(t, "Participate", card[1].Title)

	event, err := q.store.EventByThread(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "Mining Op", event.Name)
	assert.Equal(t, "Quantanium run", event.Description)
	assert.Equal(t, "1", event.CreatorID)
	assert.Equal(t, []string{"1"}, event.Participants)
	assert.Equal(t, EventStatusActive, event.Status)
	assert.NotEmpty(t, event.MessageID)

	// the interaction was deferred, so the result is a followup
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, session.responses[0].Type)
	r := session.lastReply(t)
	assert.True(t, r.Followup)
	assert.Contains(t, r.Data.Embeds[0].Description, "Event **Mining Op** has been created in <#"+threadID+">")
}

func TestHandleEventCreateSubmit_NotTextChannel(t *testing.T) {
	q, session, _ := newTestQadir(t)
	session.channels["voice"] = &discordgo.Channel{ID: "voice", Type: discordgo.ChannelTypeGuildVoice}

	dispatch(
		context.Background(),
		q,
		newModalInteraction("voice", newTestUser("1"), customIDEventCreate, map[string]string{eventInputName: "Raid"}),
	)
	assert.Equal(t, "Invalid Channel", session.lastEmbed(t).Title)
	assert.Empty(t, session.threads)
}

func TestHandleEventCreateSubmit_ThreadFailure(t *testing.T) {
	q, session, _ := newTestQadir(t)
	session.channels["events"] = &discordgo.Channel{ID: "events", Type: discordgo.ChannelTypeGuildText}
	session.threadErr = newRESTError(403)

	dispatch(
		context.Background(),
		q,
		newModalInteraction("events", newTestUser("1"), customIDEventCreate, map[string]string{eventInputName: "Raid"}),
	)
	assert.Contains(t, session.lastEmbed(t).Description, "Failed to create the event thread")

	events, err := q.store.ListEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHandleEventJoin_InThread(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	event := createTestEvent(t, q, newActiveEvent("1"))

	dispatch(ctx, q, newCommandInteraction(event.ThreadID, newTestUser("2"), commandEvent, subcommandOption("join")))
	assert.Equal(t, "🎉 Successfully Joined Event!", session.lastEmbed(t).Title)

	stored, err := q.store.EventByThread(ctx, event.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, stored.Participants)

	edits := session.editsOf(event.MessageID)
	require.Len(t, edits, 1)
	assert.Equal(t, "`2`", (*edits[0].Embeds)[0].Fields[1].Value)

	dispatch(ctx, q, newCommandInteraction(event.ThreadID, newTestUser("2"), commandEvent, subcommandOption("join")))
	assert.Equal(t, "Already Participating", session.lastEmbed(t).Title)
	assert.Len(t, session.editsOf(event.MessageID), 1)
}

func TestHandleEventJoin_Inactive(t *testing.T) {
	q, session, _ := newTestQadir(t)
	event := newActiveEvent("1")
	event.Status = EventStatusCompleted
	createTestEvent(t, q, event)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(event.ThreadID, newTestUser("2"), commandEvent, subcommandOption("join")),
	)
	embed := session.lastEmbed(t)
	assert.Equal(t, "Event Inactive", embed.Title)
	assert.Equal(t, "This event is completed and can no longer be joined.", embed.Description)
}

func TestEventSelectMenu_JoinableFirst(t *testing.T) {
	events := make([]*Event, 0, maxSelectOptions+5)
	for range maxSelectOptions {
		events = append(events, newActiveEvent("1"))
	}
	open := make([]string, 0, 5)
	for range 5 {
		e := newActiveEvent("2")
		open = append(open, e.ThreadID)
		events = append(events, e)
	}

	menu := eventSelectMenu(events, "1").Components[0].(discordgo.SelectMenu)
	require.Len(t, menu.Options, maxSelectOptions)
	for n, threadID := range open {
		assert.Equal(t, threadID, menu.Options[n].Value)
		assert.Equal(t, "1 participants • 0 items", menu.Options[n].Description)
	}
	assert.Equal(t, "Already joined • 0 items", menu.Options[len(open)].Description)
	assert.Equal(t, "1", events[0].CreatorID, "input order is kept")
}

func TestHandleEventJoin_SelectMenu(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()

	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("2"), commandEvent, subcommandOption("join")))
	assert.Equal(t, "No Active Events", session.lastEmbed(t).Title)

	first := createTestEvent(t, q, newActiveEvent("1"))
	second := newActiveEvent("2")
	second.CreatedAt = testNow.Add(time.Minute)
	createTestEvent(t, q, second)

	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("2"), commandEvent, subcommandOption("join")))
	r := session.lastReply(t)
	assert.Equal(t, "🏆 Join an Event", r.Data.Embeds[0].Title)
	require.Len(t, r.Data.Components, 1)
	row := r.Data.Components[0].(discordgo.ActionsRow)
	menu := row.Components[0].(discordgo.SelectMenu)
	assert.Equal(t, customIDEventJoinSelect, menu.CustomID)
	require.Len(t, menu.Options, 2)
	assert.Equal(t, first.ThreadID, menu.Options[0].Value)
	assert.Equal(t, "1 participants • 0 items", menu.Options[0].Description)
	assert.Equal(t, "Already joined • 0 items", menu.Options[1].Description)

	// once user 1 is in every active event, there's nothing to select
	second.Participants = append(second.Participants, "1")
	require.NoError(t, q.store.SaveEvent(ctx, second))
	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("1"), commandEvent, subcommandOption("join")))
	embed := session.lastEmbed(t)
	assert.Equal(t, "Already Participating", embed.Title)
	assert.Contains(t, embed.Description, "• 🏆 **Raid**")
}

func TestHandleEventJoinSelect(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	event := createTestEvent(t, q, newActiveEvent("1"))

	dispatch(ctx, q, newComponentInteraction(testChannelID, newTestUser("2"), customIDEventJoinSelect, event.ThreadID))
	assert.Equal(
		t,
		"🎉 Successfully joined **Raid**!\nYou can now add loot items to this event.",
		session.lastReply(t).Data.Content,
	)

	dispatch(ctx, q, newComponentInteraction(testChannelID, newTestUser("2"), customIDEventJoinSelect, event.ThreadID))
	assert.Equal(t, "✅ You're already participating in this event!", session.lastReply(t).Data.Content)

	dispatch(ctx, q, newComponentInteraction(testChannelID, newTestUser("2"), customIDEventJoinSelect, "missing"))
	assert.Equal(t, "❌ Event not found.", session.lastReply(t).Data.Content)

	dispatch(ctx, q, newComponentInteraction(testChannelID, newTestUser("2"), customIDEventJoinSelect))
	assert.Equal(t, "No event selected.", session.lastEmbed(t).Description)
}

func lootCommand(threadID string, user *discordgo.User, itemID string, quantity int64) *discordgo.InteractionCreate {
	return newCommandInteraction(
		threadID,
		user,
		commandEvent,
		subcommandOption(
			"loot",
			stringOption(eventOptionItem, itemID),
			integerOption(eventOptionQuantity, quantity),
		),
	)
}

func TestHandleEventLoot(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	event := createTestEvent(t, q, newActiveEvent("1"))

	dispatch(ctx, q, lootCommand(event.ThreadID, newTestUser("1"), "gold", 5))
	assert.Equal(t, "No Items Configured", session.lastEmbed(t).Title)

	require.NoError(t, q.cache.SetItems(ctx, []LootItem{itemGold, itemSilver}))

	dispatch(ctx, q, lootCommand(event.ThreadID, newTestUser("1"), "gold", 5))
	embed := session.lastEmbed(t)
	assert.Equal(t, "Loot Added", embed.Title)
	assert.Equal(t, "Added `5x Gold` to the event loot", embed.Description)

	stored, err := q.store.EventByThread(ctx, event.ThreadID)
	require.NoError(t, err)
	require.Len(t, stored.LootEntries, 1)
	assert.Equal(t, itemGold, stored.LootEntries[0].Item)
	assert.Equal(t, int64(5), stored.LootEntries[0].Quantity)
	assert.Equal(t, "1", stored.LootEntries[0].AddedBy)
	assert.Len(t, session.editsOf(event.MessageID), 1)

	dispatch(ctx, q, lootCommand(event.ThreadID, newTestUser("1"), "platinum", 5))
	assert.Equal(t, "Not Found", session.lastEmbed(t).Title)

	dispatch(ctx, q, lootCommand(event.ThreadID, newTestUser("2"), "gold", 5))
	assert.Equal(t, "Not Participating", session.lastEmbed(t).Title)

	dispatch(ctx, q, lootCommand(event.ThreadID, newTestUser("1"), "gold", maxLootQuantity))
	assert.Equal(t, "Invalid Quantity", session.lastEmbed(t).Title)

	dispatch(ctx, q, lootCommand(testChannelID, newTestUser("1"), "gold", 5))
	assert.Equal(t, "Not In Event Thread", session.lastEmbed(t).Title)

	stored, err = q.store.EventByThread(ctx, event.ThreadID)
	require.NoError(t, err)
	assert.Len(t, stored.LootEntries, 1)
}

func TestHandleEventLoot_UsesCachedEvent(t *testing.T) {
	q, _, _ := newTestQadir(t)
	ctx := context.Background()
	event := createTestEvent(t, q, newActiveEvent("1"))

	got, err := q.getEvent(ctx, event.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)

	var cached Event
	require.NoError(t, q.cache.GetJSON(ctx, q.eventCacheKey(event.ThreadID), &cached))
	assert.Equal(t, event.ID, cached.ID)

	require.NoError(t, got.Join("2"))
	require.NoError(t, q.saveEvent(ctx, got))
	assert.ErrorIs(t, q.cache.GetJSON(ctx, q.eventCacheKey(event.ThreadID), &cached), ErrCacheMiss)

	_, err = q.getEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleEventLootAutocomplete(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	require.NoError(
		t,
		q.cache.SetItems(ctx, []LootItem{itemGold, {ID: "apple", Name: "Golden Apple"}, itemSilver}),
	)

	typed := stringOption(eventOptionItem, "GOL")
	typed.Focused = true
	i := newTestInteraction(
		discordgo.InteractionApplicationCommandAutocomplete,
		testChannelID,
		newTestUser("1"),
		discordgo.ApplicationCommandInteractionData{
			Name:    commandEvent,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{subcommandOption("loot", typed)},
		},
	)
	dispatch(ctx, q, i)

	r := session.lastReply(t)
	assert.Equal(t, discordgo.InteractionApplicationCommandAutocompleteResult, r.Type)
	require.Len(t, r.Data.Choices, 2)
	assert.Equal(t, "Gold", r.Data.Choices[0].Name)
	assert.Equal(t, "gold", r.Data.Choices[0].Value)
	assert.Equal(t, "apple", r.Data.Choices[1].Value)
}

func TestHandleEventLootAutocomplete_MatchesID(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	require.NoError(
		t,
		q.cache.SetItems(ctx, []LootItem{itemGold, {ID: "QT-Drive", Name: "Quantum Drive"}, itemSilver}),
	)

	typed := stringOption(eventOptionItem, "qt-")
	typed.Focused = true
	i := newTestInteraction(
		discordgo.InteractionApplicationCommandAutocomplete,
		testChannelID,
		newTestUser("1"),
		discordgo.ApplicationCommandInteractionData{
			Name:    commandEvent,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{subcommandOption("loot", typed)},
		},
	)
	dispatch(ctx, q, i)

	choices := session.lastReply(t).Data.Choices
	require.Len(t, choices, 1)
	assert.Equal(t, "Quantum Drive", choices[0].Name)
	assert.Equal(t, "QT-Drive", choices[0].Value)
}

func TestHandleEventLootAutocomplete_Limit(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	items := make([]LootItem, 0, 40)
	for range 40 {
		items = append(items, LootItem{ID: uuid.NewString(), Name: "Item"})
	}
	require.NoError(t, q.cache.SetItems(ctx, items))

	i := newTestInteraction(
		discordgo.InteractionApplicationCommandAutocomplete,
		testChannelID,
		newTestUser("1"),
		discordgo.ApplicationCommandInteractionData{
			Name:    commandEvent,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{subcommandOption("loot")},
		},
	)
	dispatch(ctx, q, i)
	assert.Len(t, session.lastReply(t).Data.Choices, maxSelectOptions)
}

func TestHandleEventFinalise(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()
	event := createTestEvent(t, q, newActiveEvent("1", "2"))

	dispatch(ctx, q, newCommandInteraction(event.ThreadID, newTestUser("2"), commandEvent, subcommandOption("finalise")))
	embed := session.lastEmbed(t)
	assert.Equal(t, "Permission Denied", embed.Title)
	assert.Contains(t, embed.Description, "Event creator: <@1>")

	dispatch(ctx, q, newCommandInteraction(event.ThreadID, newTestUser("1"), commandEvent, subcommandOption("finalise")))
	embed = session.lastEmbed(t)
	assert.Equal(t, "Event Finalised", embed.Title)
	assert.Equal(t, colorGold, embed.Color)

	stored, err := q.store.EventByThread(ctx, event.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusCompleted, stored.Status)

	require.Len(t, session.channelEdits, 1)
	assert.Equal(t, event.ThreadID, session.channelEdits[0].ChannelID)
	assert.True(t, *session.channelEdits[0].Data.Locked)

	dispatch(ctx, q, newCommandInteraction(event.ThreadID, newTestUser("1"), commandEvent, subcommandOption("finalise")))
	assert.Equal(t, "This event is already completed.", session.lastEmbed(t).Description)

	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("1"), commandEvent, subcommandOption("finalise")))
	assert.Equal(t, "This thread is not associated with an active event.", session.lastEmbed(t).Description)
}

func TestHandleEventList(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()

	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("1"), commandEvent, subcommandOption("list")))
	assert.Equal(t, "You haven't created any active events.", session.lastEmbed(t).Description)

	active := newActiveEvent("1", "2")
	createTestEvent(t, q, active)
	done := newActiveEvent("1")
	done.Name = "Cargo Haul"
	done.Status = EventStatusCompleted
	done.CreatedAt = testNow.Add(time.Minute)
	createTestEvent(t, q, done)
	createTestEvent(t, q, newActiveEvent("3"))

	dispatch(ctx, q, newCommandInteraction(testChannelID, newTestUser("1"), commandEvent, subcommandOption("list")))
	embed := session.lastEmbed(t)
	assert.Equal(t, "Your Events", embed.Title)
	assert.Equal(
		t,
		"🟢 **Raid** (`2` participants, `0` items)\n🔴 **Cargo Haul** (`1` participant, `0` items)",
		embed.Description,
	)
}

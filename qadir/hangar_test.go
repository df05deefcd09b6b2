package qadir

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"testing"
	"time"
)

func TestHangarStateAt(t *testing.T) {
	g, r, e := lightGreen, lightRed, lightEmpty
	testCases := []struct {
		name   string
		offset time.Duration
		online bool
		lights [5]hangarLight
	}{
		{name: "open", offset: 0, online: true, lights: [5]hangarLight{g, g, g, g, g}},
		{name: "open 13m", offset: 13 * time.Minute, online: true, lights: [5]hangarLight{g, g, g, g, e}},
		{name: "open 50m", offset: 50 * time.Minute, online: true, lights: [5]hangarLight{g, e, e, e, e}},
		{name: "closing", offset: 62 * time.Minute, online: true, lights: [5]hangarLight{e, e, e, e, e}},
		{name: "closed", offset: 66 * time.Minute, online: false, lights: [5]hangarLight{r, r, r, r, r}},
		{name: "closed 100m", offset: 100 * time.Minute, online: false, lights: [5]hangarLight{g, r, r, r, r}},
		{name: "reopening", offset: 170 * time.Minute, online: false, lights: [5]hangarLight{g, g, g, g, r}},
		{name: "next cycle", offset: hangarCycleDuration + 13*time.Minute, online: true, lights: [5]hangarLight{g, g, g, g, e}},
		{name: "before reference", offset: -time.Minute, online: false, lights: [5]hangarLight{g, g, g, g, r}},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				state := hangarStateAt(hangarInitialOpenTime.Add(tc.offset))
				assert.Equal(t, tc.online, state.Online)
				assert.Equal(t, tc.lights, state.Lights)
				assert.True(t, state.NextStatusChange.After(state.At))
				assert.True(t, state.NextLightChange.After(state.At))
			},
		)
	}
}

func TestHangarStateAt_NextChanges(t *testing.T) {
	state := hangarStateAt(testNow)
	require.True(t, state.Online)
	assert.Equal(t, time.Duration(0), state.InCycle)
	assert.Equal(t, testNow.Add(hangarOpenDuration), state.NextStatusChange)
	assert.Equal(t, testNow.Add(12*time.Minute+time.Second), state.NextLightChange)

	closed := hangarStateAt(testNow.Add(hangarOpenDuration))
	require.False(t, closed.Online)
	assert.Equal(t, testNow.Add(hangarCycleDuration), closed.NextStatusChange)

	// last threshold rolls over to the next cycle
	late := hangarStateAt(testNow.Add(170 * time.Minute))
	assert.Equal(t, testNow.Add(hangarCycleDuration+time.Second), late.NextLightChange)
}

func TestHangarState_Embed(t *testing.T) {
	open := hangarStateAt(testNow).Embed()
	assert.Equal(t, "Executive Hangar Status", open.Title)
	assert.Equal(t, colorHangarOn, open.Color)
	assert.Equal(t, "**Hangar Open**", open.Fields[0].Value)
	assert.Equal(t, discordRelativeTimestamp(testNow.Add(hangarOpenDuration)), open.Fields[1].Value)
	assert.Equal(t, "🟢 🟢 🟢 🟢 🟢", open.Fields[3].Value)
	assert.Equal(t, "ℹ️ Online Phase", open.Fields[4].Name)
	assert.Equal(t, embedTimestamp(testNow), open.Timestamp)

	closed := hangarStateAt(testNow.Add(70 * time.Minute)).Embed()
	assert.Equal(t, colorHangarOff, closed.Color)
	assert.Equal(t, "**Hangar Closed**", closed.Fields[0].Value)
	assert.Equal(t, "🔴 🔴 🔴 🔴 🔴", closed.Fields[3].Value)
	assert.Equal(t, "ℹ️ Offline Phase", closed.Fields[4].Name)
}

func TestHandleHangarCreate(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()

	dispatch(
		ctx,
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandHangar, subcommandOption("create")),
	)

	msgs := session.sentTo(testChannelID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Executive Hangar Status", msgs[0].Embeds[0].Title)

	embeds, err := q.store.ListHangarEmbeds(ctx)
	require.NoError(t, err)
	require.Len(t, embeds, 1)
	assert.Equal(t, testChannelID, embeds[0].ChannelID)
	assert.Equal(t, testGuildID, embeds[0].GuildID)
	assert.NotEmpty(t, embeds[0].MessageID)

	assert.Equal(t, "Embed Created", session.lastEmbed(t).Title)
}

func TestHandleHangarCreate_SendFails(t *testing.T) {
	q, session, _ := newTestQadir(t)
	session.sendErrs[testChannelID] = newRESTError(http.StatusForbidden)

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandHangar, subcommandOption("create")),
	)
	assert.Equal(
		t,
		"Failed to create the hangar embed. Are you sure I have permissions?",
		session.lastEmbed(t).Description,
	)

	embeds, err := q.store.ListHangarEmbeds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, embeds)
}

func TestHandleHangarCreate_StoreFails(t *testing.T) {
	q, session, _ := newTestQadir(t)
	require.NoError(t, q.store.Close(context.Background()))

	dispatch(
		context.Background(),
		q,
		newCommandInteraction(testChannelID, newTestUser("1"), commandHangar, subcommandOption("create")),
	)

	msgs := session.sentTo(testChannelID)
	require.Len(t, msgs, 1)
	require.Len(t, session.deletedMessages, 1, "untracked embeds are removed")
	assert.Contains(t, session.deletedMessages[0], testChannelID+"/")
	assert.Equal(t, "Failed to create the hangar embed. Please try again.", session.lastEmbed(t).Description)
}

func TestProcessHangarEmbeds(t *testing.T) {
	q, session, _ := newTestQadir(t)
	ctx := context.Background()

	assert.Equal(t, 0, q.processHangarEmbeds(ctx))

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(
			t,
			q.store.CreateHangarEmbed(
				ctx,
				&HangarEmbed{ID: "id-" + id, MessageID: id, ChannelID: testChannelID, GuildID: testGuildID, CreatedAt: testNow},
			),
		)
	}
	session.editErrs["m2"] = newRESTError(http.StatusNotFound)
	session.editErrs["m3"] = newRESTError(http.StatusInternalServerError)

	assert.Equal(t, 1, q.processHangarEmbeds(ctx))
	edits := session.editsOf("m1")
	require.Len(t, edits, 1)
	assert.Equal(t, testChannelID, edits[0].Channel)
	assert.Equal(t, "**Hangar Open**", (*edits[0].Embeds)[0].Fields[0].Value)

	// missing messages are untracked, failing ones are kept
	embeds, err := q.store.ListHangarEmbeds(ctx)
	require.NoError(t, err)
	var ids []string
	for _, e := range embeds {
		ids = append(ids, e.MessageID)
	}
	assert.ElementsMatch(t, []string{"m1", "m3"}, ids)

	delete(session.editErrs, "m3")
	assert.Equal(t, 2, q.processHangarEmbeds(ctx))
}

func TestHangarEmbeds_Cached(t *testing.T) {
	q, _, _ := newTestQadir(t)
	ctx := context.Background()
	require.NoError(
		t,
		q.store.CreateHangarEmbed(ctx, &HangarEmbed{ID: "1", MessageID: "m1", ChannelID: testChannelID, CreatedAt: testNow}),
	)

	embeds, err := q.hangarEmbeds(ctx)
	require.NoError(t, err)
	require.Len(t, embeds, 1)

	// a second embed isn't seen until the cache is invalidated
	require.NoError(
		t,
		q.store.CreateHangarEmbed(ctx, &HangarEmbed{ID: "2", MessageID: "m2", ChannelID: testChannelID, CreatedAt: testNow}),
	)
	embeds, err = q.hangarEmbeds(ctx)
	require.NoError(t, err)
	assert.Len(t, embeds, 1)

	require.NoError(t, q.cache.Delete(ctx, q.hangarCacheKey()))
	embeds, err = q.hangarEmbeds(ctx)
	require.NoError(t, err)
	assert.Len(t, embeds, 2)
}

func TestHangarSleep(t *testing.T) {
	q, _, _ := newTestQadir(t)

	assert.Equal(t, DefaultHangarMaxInterval, q.hangarSleep())

	q.config.Hangar.MaxInterval = time.Hour
	assert.Equal(t, 12*time.Minute+time.Second, q.hangarSleep())
}

package qadir

import (
	"context"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestGormStore(t *testing.T) *gormStore {
	t.Helper()
	ctx := context.Background()
	handler := tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug})

	db, err := CreateDB(
		ctx,
		dbTypeSQLite,
		filepath.Join(t.TempDir(), "nested", "qadir.sqlite3"),
		newGORMLogger(handler, DefaultDatabaseSlowThreshold),
	)
	require.NoError(t, err)
	store := newGormStore(db, slog.New(handler))
	t.Cleanup(func() { _ = store.Close(ctx) })
	return store
}

func TestGormStore(t *testing.T) {
	testStoreContract(t, newTestGormStore(t))
}

func TestCreateDB_InvalidType(t *testing.T) {
	_, err := CreateDB(
		context.Background(),
		"oracle",
		"",
		newGORMLogger(tint.NewHandler(os.Stdout, nil), time.Second),
	)
	assert.ErrorContains(t, err, "unsupported database type: oracle")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	handler := tint.NewHandler(os.Stdout, nil)
	cfg := newTestConfig(t)

	store, err := OpenStore(ctx, cfg, handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })
	assert.IsType(t, &gormStore{}, store)
	assert.NoError(t, store.Ping(ctx))

	cfg.Database.Type = "cassandra"
	_, err = OpenStore(ctx, cfg, handler)
	assert.ErrorContains(t, err, "unsupported database type: cassandra")
}

func TestGormStore_ConcurrentWrites(t *testing.T) {
	s := newTestGormStore(t)
	assert.False(t, s.enableConcurrentWrites, "sqlite serializes writes")
}

// testStoreContract runs the behaviour shared by every Store
// implementation against s, which must be empty
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := testNow.Truncate(time.Millisecond)

	t.Run(
		"proposals", func(t *testing.T) {
			_, err := s.ProposalByThread(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			n, err := s.CountProposals(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			for i, thread := range []string{"p1", "p2", "p3"} {
				require.NoError(
					t,
					s.CreateProposal(
						ctx,
						&Proposal{
							ID:        "proposal-" + thread,
							ThreadID:  thread,
							MessageID: "m-" + thread,
							CreatorID: "1",
							Title:     "Proposal " + thread,
							CreatedAt: base.Add(time.Duration(i) * time.Hour),
							Status:    ProposalStatusActive,
						},
					),
				)
			}
			assert.Error(
				t,
				s.CreateProposal(ctx, &Proposal{ID: "dup", ThreadID: "p1", Status: ProposalStatusActive}),
				"thread ids are unique",
			)

			n, err = s.CountProposals(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			p, err := s.ProposalByThread(ctx, "p2")
			require.NoError(t, err)
			assert.Equal(t, "Proposal p2", p.Title)
			assert.True(t, p.CreatedAt.Equal(base.Add(time.Hour)))
			assert.Empty(t, p.Votes.Upvotes)

			p.Votes.Toggle("5", true)
			p.Votes.Toggle("6", false)
			p.Status = ProposalStatusClosed
			require.NoError(t, s.SaveProposal(ctx, p))

			p, err = s.ProposalByThread(ctx, "p2")
			require.NoError(t, err)
			assert.Equal(t, ProposalStatusClosed, p.Status)
			assert.Equal(t, []string{"5"}, p.Votes.Upvotes)
			assert.Equal(t, []string{"6"}, p.Votes.Downvotes)

			expired, err := s.ActiveProposalsBefore(ctx, base.Add(3*time.Hour))
			require.NoError(t, err)
			require.Len(t, expired, 2)
			assert.Equal(t, "p1", expired[0].ThreadID)
			assert.Equal(t, "p3", expired[1].ThreadID)

			expired, err = s.ActiveProposalsBefore(ctx, base)
			require.NoError(t, err)
			assert.Empty(t, expired)

			// cutoffs outside UTC compare by instant, not wall clock
			east := time.FixedZone("UTC+11", 11*60*60)
			expired, err = s.ActiveProposalsBefore(ctx, base.Add(30*time.Minute).In(east))
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "p1", expired[0].ThreadID)

			west := time.FixedZone("UTC-4", -4*60*60)
			expired, err = s.ActiveProposalsBefore(ctx, base.Add(90*time.Minute).In(west))
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "p1", expired[0].ThreadID)

			all, err := s.ListProposals(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "p3", all[0].ThreadID, "newest first")

			closed, err := s.ListProposals(ctx, ProposalStatusClosed)
			require.NoError(t, err)
			require.Len(t, closed, 1)
			assert.Equal(t, "p2", closed[0].ThreadID)
		},
	)

	t.Run(
		"events", func(t *testing.T) {
			_, err := s.EventByThread(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			events := []*Event{
				{ID: "e1", ThreadID: "t1", CreatorID: "1", Name: "One", Status: EventStatusActive, CreatedAt: base},
				{
					ID:        "e2",
					ThreadID:  "t2",
					CreatorID: "2",
					Name:      "Two",
					Status:    EventStatusActive,
					CreatedAt: base.Add(time.Minute),
				},
				{
					ID:        "e3",
					ThreadID:  "t3",
					CreatorID: "1",
					Name:      "Three",
					Status:    EventStatusCompleted,
					CreatedAt: base.Add(2 * time.Minute),
				},
			}
			for _, e := range events {
				e.Participants = []string{e.CreatorID}
				require.NoError(t, s.CreateEvent(ctx, e))
			}

			e, err := s.EventByThread(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "One", e.Name)
			assert.Equal(t, []string{"1"}, e.Participants)
			assert.Empty(t, e.LootEntries)

			e.AddParticipant("9")
			e.LootEntries = append(
				e.LootEntries,
				LootEntry{Item: LootItem{ID: "gold", Name: "Gold"}, Quantity: 4, AddedBy: "9", AddedAt: base},
			)
			require.NoError(t, s.SaveEvent(ctx, e))

			e, err = s.EventByThread(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "9"}, e.Participants)
			require.Len(t, e.LootEntries, 1)
			assert.Equal(t, int64(4), e.LootEntries[0].Quantity)
			assert.Equal(t, "Gold", e.LootEntries[0].Item.Name)

			active, err := s.ListEvents(ctx, EventStatusActive)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "t1", active[0].ThreadID, "oldest first")
			assert.Equal(t, "t2", active[1].ThreadID)

			all, err := s.ListEvents(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			mine, err := s.EventsByCreator(ctx, "1")
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "t1", mine[0].ThreadID)
			assert.Equal(t, "t3", mine[1].ThreadID)

			none, err := s.EventsByCreator(ctx, "404")
			require.NoError(t, err)
			assert.Empty(t, none)
		},
	)

	t.Run(
		"hangar embeds", func(t *testing.T) {
			embeds, err := s.ListHangarEmbeds(ctx)
			require.NoError(t, err)
			assert.Empty(t, embeds)

			for i, id := range []string{"m1", "m2"} {
				require.NoError(
					t,
					s.CreateHangarEmbed(
						ctx,
						&HangarEmbed{
							ID:        "h-" + id,
							MessageID: id,
							ChannelID: "c",
							GuildID:   "g",
							CreatedAt: base.Add(time.Duration(i) * time.Second),
						},
					),
				)
			}

			require.NoError(t, s.DeleteHangarEmbed(ctx, "m1"))
			require.NoError(t, s.DeleteHangarEmbed(ctx, "m1"), "deleting a missing embed is not an error")

			embeds, err = s.ListHangarEmbeds(ctx)
			require.NoError(t, err)
			require.Len(t, embeds, 1)
			assert.Equal(t, "m2", embeds[0].MessageID)
			assert.Equal(t, "g", embeds[0].GuildID)
		},
	)

	t.Run(
		"activities", func(t *testing.T) {
			for i, user := range []string{"u1", "u2", "u1"} {
				start := base.Add(time.Duration(-i) * time.Hour)
				partial := PartialActivity{UserID: user, ApplicationID: "app", Name: "Game", StartTime: start}
				require.NoError(t, s.CreateActivity(ctx, partial.finish("a"+string(rune('0'+i)), start.Add(time.Minute))))
			}

			mine, err := s.ListActivities(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "a2", mine[0].ID, "ordered by start time")
			assert.InDelta(t, 60, mine[0].Duration, 0.001)
			assert.True(t, mine[1].StartTime.Equal(base))

			all, err := s.ListActivities(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		},
	)

	assert.NoError(t, s.Ping(ctx))
}

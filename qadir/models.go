package qadir

import (
	"slices"
	"time"
)

type ProposalStatus string

const (
	ProposalStatusActive ProposalStatus = "active"
	ProposalStatusClosed ProposalStatus = "closed"
)

type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusArchived  EventStatus = "archived"
)

// Proposal is a member-submitted proposal with a thread and a button poll
type Proposal struct {
	ID        string         `json:"id" bson:"_id" gorm:"primaryKey"`
	ThreadID  string         `json:"thread_id" bson:"thread_id" gorm:"uniqueIndex;not null"`
	MessageID string         `json:"message_id" bson:"message_id"`
	CreatorID string         `json:"creator_id" bson:"creator_id" gorm:"index"`
	Title     string         `json:"title" bson:"title"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at" gorm:"index"`
	Status    ProposalStatus `json:"status" bson:"status" gorm:"index"`
	Votes     Votes          `json:"votes" bson:"votes" gorm:"serializer:json;type:text"`
}

// Votes holds the user IDs on each side of a poll. A user is never in
// both lists.
type Votes struct {
	Upvotes   []string `json:"upvotes" bson:"upvotes"`
	Downvotes []string `json:"downvotes" bson:"downvotes"`
}

// Toggle flips userID's vote for the given side, and removes any vote
// on the opposite side. It returns true if the vote was added, false if
// it was removed.
func (v *Votes) Toggle(userID string, upvote bool) bool {
	same, opposite := &v.Upvotes, &v.Downvotes
	if !upvote {
		same, opposite = &v.Downvotes, &v.Upvotes
	}
	*opposite = slices.DeleteFunc(*opposite, func(id string) bool { return id == userID })

	if slices.Contains(*same, userID) {
		*same = slices.DeleteFunc(*same, func(id string) bool { return id == userID })
		return false
	}
	*same = append(*same, userID)
	return true
}

// Event is a loot tracking event bound to a thread
type Event struct {
	ID           string      `json:"id" bson:"_id" gorm:"primaryKey"`
	ThreadID     string      `json:"thread_id" bson:"thread_id" gorm:"uniqueIndex;not null"`
	MessageID    string      `json:"message_id" bson:"message_id"`
	CreatorID    string      `json:"creator_id" bson:"creator_id" gorm:"index"`
	CreatedAt    time.Time   `json:"created_at" bson:"created_at" gorm:"index"`
	Name         string      `json:"name" bson:"name"`
	Description  string      `json:"description" bson:"description"`
	Status       EventStatus `json:"status" bson:"status" gorm:"index"`
	Participants []string    `json:"participants" bson:"participants" gorm:"serializer:json;type:text"`
	LootEntries  []LootEntry `json:"loot_entries" bson:"loot_entries" gorm:"serializer:json;type:text"`
}

func (e *Event) IsParticipant(userID string) bool {
	return slices.Contains(e.Participants, userID)
}

// AddParticipant adds userID, returning false if already present
func (e *Event) AddParticipant(userID string) bool {
	if e.IsParticipant(userID) {
		return false
	}
	e.Participants = append(e.Participants, userID)
	return true
}

// LootItem is an entry of the item catalogue
type LootItem struct {
	ID   string `json:"id" bson:"id" binding:"required"`
	Name string `json:"name" bson:"name" binding:"required"`
}

type LootEntry struct {
	Item     LootItem  `json:"item" bson:"item"`
	Quantity int64     `json:"quantity" bson:"quantity"`
	AddedBy  string    `json:"added_by" bson:"added_by"`
	AddedAt  time.Time `json:"added_at" bson:"added_at"`
}

// HangarEmbed tracks a posted hangar status message
type HangarEmbed struct {
	ID        string    `json:"id" bson:"_id" gorm:"primaryKey"`
	MessageID string    `json:"message_id" bson:"message_id" gorm:"uniqueIndex;not null"`
	ChannelID string    `json:"channel_id" bson:"channel_id" gorm:"index"`
	GuildID   string    `json:"guild_id" bson:"guild_id" gorm:"index"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// PartialActivity is an in-progress application session, held in redis
type PartialActivity struct {
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	StartTime     time.Time `json:"start_time"`
}

// Activity is a finished application session
type Activity struct {
	ID            string    `json:"id" bson:"_id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" bson:"user_id" gorm:"index"`
	ApplicationID string    `json:"application_id" bson:"application_id" gorm:"index"`
	Name          string    `json:"name" bson:"name"`
	StartTime     time.Time `json:"start_time" bson:"start_time" gorm:"index"`
	EndTime       time.Time `json:"end_time" bson:"end_time"`

	// Duration in seconds
	Duration float64 `json:"duration" bson:"duration"`
}

// finish converts a partial session into a finished one, ending at end
func (p PartialActivity) finish(id string, end time.Time) *Activity {
	return &Activity{
		ID:            id,
		UserID:        p.UserID,
		ApplicationID: p.ApplicationID,
		Name:          p.Name,
		StartTime:     p.StartTime,
		EndTime:       end,
		Duration:      end.Sub(p.StartTime).Seconds(),
	}
}

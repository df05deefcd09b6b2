package qadir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	dbTypeMongoDB  = "mongodb"
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

// Store persists proposals, events, hangar embeds and activities.
// Lookups that match nothing return ErrNotFound.
type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateProposal(ctx context.Context, p *Proposal) error
	ProposalByThread(ctx context.Context, threadID string) (*Proposal, error)
	CountProposals(ctx context.Context) (int64, error)
	SaveProposal(ctx context.Context, p *Proposal) error

	// ActiveProposalsBefore returns active proposals created before t,
	// oldest first
	ActiveProposalsBefore(ctx context.Context, t time.Time) ([]*Proposal, error)

	// ListProposals returns proposals with the given status, or all
	// proposals when status is empty, newest first
	ListProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error)

	CreateEvent(ctx context.Context, e *Event) error
	EventByThread(ctx context.Context, threadID string) (*Event, error)
	SaveEvent(ctx context.Context, e *Event) error

	// ListEvents returns events with the given status, or all events
	// when status is empty, oldest first
	ListEvents(ctx context.Context, status EventStatus) ([]*Event, error)
	EventsByCreator(ctx context.Context, creatorID string) ([]*Event, error)

	CreateHangarEmbed(ctx context.Context, h *HangarEmbed) error
	ListHangarEmbeds(ctx context.Context) ([]*HangarEmbed, error)
	DeleteHangarEmbed(ctx context.Context, messageID string) error

	CreateActivity(ctx context.Context, a *Activity) error
	ListActivities(ctx context.Context, userID string) ([]*Activity, error)
}

// OpenStore connects to the store configured by cfg
func OpenStore(
	ctx context.Context,
	cfg *Config,
	handler slog.Handler,
) (Store, error) {
	logger := slog.New(handler).With(loggerNameKey, "database")
	logger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", cfg.Database.Type,
		"database_name", cfg.DatabaseName(),
	)

	switch cfg.Database.Type {
	case dbTypeMongoDB:
		return newMongoStore(ctx, cfg.Database.URI, cfg.DatabaseName(), logger)
	case dbTypeSQLite, dbTypePostgres:
		db, err := CreateDB(
			ctx,
			cfg.Database.Type,
			cfg.Database.URI,
			newGORMLogger(handler, cfg.Database.SlowThreshold),
		)
		if err != nil {
			return nil, err
		}
		return newGormStore(db, logger), nil
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q, %q or %q)",
			cfg.Database.Type, dbTypeMongoDB, dbTypeSQLite, dbTypePostgres,
		)
	}
}

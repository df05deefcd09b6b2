package qadir

import (
	"context"
	"errors"
	"fmt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
)

// gormStore implements Store on top of gorm, for sqlite and postgres.
//
// sqlite only allows a single writer, so writes are serialized with mu
// when concurrent writes are disabled.
type gormStore struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

func newGormStore(db *gorm.DB, logger *slog.Logger) *gormStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &gormStore{
		db:                     db,
		logger:                 logger,
		enableConcurrentWrites: db.Dialector.Name() != dbTypeSQLite,
	}
}

// CreateDB opens the database and migrates all models.
//
// Parameters:
//   - databaseType: Must be 'sqlite' or 'postgres'
//   - database: Database connection string, or SQLite file path.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if databaseType == dbTypeSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return db, err
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, pragma := range sqliteExecPragma {
			if err = db.WithContext(ctx).Exec(pragma).Error; err != nil {
				return db, fmt.Errorf("error executing %q: %w", pragma, err)
			}
		}
	}

	err = db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(
				&Proposal{},
				&Event{},
				&HangarEmbed{},
				&Activity{},
			)
		},
	)
	return db, err
}

// getDB initializes and returns a GORM database connection based on the
// specified database type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0o755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

func (s *gormStore) lock() func() {
	if s.enableConcurrentWrites {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) create(ctx context.Context, value any) error {
	defer s.lock()()
	return s.db.WithContext(ctx).Create(value).Error
}

func (s *gormStore) save(ctx context.Context, value any) error {
	defer s.lock()()
	return s.db.WithContext(ctx).Save(value).Error
}

// first wraps gorm.ErrRecordNotFound as ErrNotFound
func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var v T
	err := db.WithContext(ctx).Where(query, args...).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// sqlite compares timestamps as text, so proposal times are always
// written and queried in UTC
func (s *gormStore) CreateProposal(ctx context.Context, p *Proposal) error {
	p.CreatedAt = p.CreatedAt.UTC()
	return s.create(ctx, p)
}

func (s *gormStore) ProposalByThread(ctx context.Context, threadID string) (*Proposal, error) {
	return first[Proposal](ctx, s.db, "thread_id = ?", threadID)
}

func (s *gormStore) CountProposals(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Proposal{}).Count(&n).Error
	return n, err
}

func (s *gormStore) SaveProposal(ctx context.Context, p *Proposal) error {
	p.CreatedAt = p.CreatedAt.UTC()
	return s.save(ctx, p)
}

func (s *gormStore) ActiveProposalsBefore(ctx context.Context, t time.Time) ([]*Proposal, error) {
	var proposals []*Proposal
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", ProposalStatusActive, t.UTC()).
		Order("created_at asc").
		Find(&proposals).Error
	return proposals, err
}

func (s *gormStore) ListProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error) {
	var proposals []*Proposal
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&proposals).Error
	return proposals, err
}

func (s *gormStore) CreateEvent(ctx context.Context, e *Event) error {
	return s.create(ctx, e)
}

func (s *gormStore) EventByThread(ctx context.Context, threadID string) (*Event, error) {
	return first[Event](ctx, s.db, "thread_id = ?", threadID)
}

func (s *gormStore) SaveEvent(ctx context.Context, e *Event) error {
	return s.save(ctx, e)
}

func (s *gormStore) ListEvents(ctx context.Context, status EventStatus) ([]*Event, error) {
	var events []*Event
	q := s.db.WithContext(ctx).Order("created_at asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&events).Error
	return events, err
}

func (s *gormStore) EventsByCreator(ctx context.Context, creatorID string) ([]*Event, error) {
	var events []*Event
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at asc").
		Find(&events).Error
	return events, err
}

func (s *gormStore) CreateHangarEmbed(ctx context.Context, h *HangarEmbed) error {
	return s.create(ctx, h)
}

func (s *gormStore) ListHangarEmbeds(ctx context.Context) ([]*HangarEmbed, error) {
	var embeds []*HangarEmbed
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&embeds).Error
	return embeds, err
}

func (s *gormStore) DeleteHangarEmbed(ctx context.Context, messageID string) error {
	defer s.lock()()
	return s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&HangarEmbed{}).Error
}

func (s *gormStore) CreateActivity(ctx context.Context, a *Activity) error {
	return s.create(ctx, a)
}

func (s *gormStore) ListActivities(ctx context.Context, userID string) ([]*Activity, error) {
	var activities []*Activity
	q := s.db.WithContext(ctx).Order("start_time asc")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&activities).Error
	return activities, err
}

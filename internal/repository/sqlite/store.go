// Package sqlite implements the repository interfaces on gorm with the pure-Go
// SQLite driver. It backs local runs (dsn sqlite://board.db) and end-to-end tests.
package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/repository"
)

// Scheme is the DSN prefix selecting this backend.
const Scheme = "sqlite://"

type postRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Title     string    `gorm:"not null;default:''"`
	Body      string    `gorm:"not null"`
	TokenHash string    `gorm:"size:64;not null;index"`
	Score     int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index"`
}

func (postRow) TableName() string { return "conf_posts" }

// comments keep no foreign key: they outlive their post
type commentRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	PostID    string `gorm:"size:36;not null;index"`
	Body      string `gorm:"not null"`
	TokenHash string `gorm:"size:64;not null"`
	Score     int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (commentRow) TableName() string { return "conf_comments" }

type voteRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	SubjectType string `gorm:"size:16;not null;index:idx_vote_subject"`
	SubjectID   string `gorm:"size:36;not null;index:idx_vote_subject"`
	TokenHash   string `gorm:"size:64;not null"`
	Value       int    `gorm:"not null"`
	CreatedAt   time.Time
}

func (voteRow) TableName() string { return "conf_votes" }

type flagRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	SubjectType string    `gorm:"size:16;not null"`
	SubjectID   string    `gorm:"size:36;not null"`
	TokenHash   string    `gorm:"size:64;not null"`
	Reason      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index"`
}

func (flagRow) TableName() string { return "conf_flags" }

type moderatorRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"not null;uniqueIndex"`
	PwdHash   string `gorm:"not null"`
	CreatedAt time.Time
}

func (moderatorRow) TableName() string { return "moderators" }

// Store owns the gorm handle shared by the SQLite repositories.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to path (":memory:" for a private in-memory database) and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path = strings.TrimPrefix(path, Scheme)
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty path: %w", errs.ErrInvalidInput)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&postRow{}, &commentRow{}, &voteRow{}, &flagRow{}, &moderatorRow{}); err != nil {
		return nil, fmt.Errorf("sqlite automigrate: %w", err)
	}
	log.Info("sqlite store ready", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Content returns the ContentRepository view of the store.
func (s *Store) Content() *ContentRepo { return &ContentRepo{db: s.db} }

// Moderators returns the ModeratorRepository view of the store.
func (s *Store) Moderators() *ModeratorRepo { return &ModeratorRepo{db: s.db} }

var (
	_ repository.ContentRepository   = (*ContentRepo)(nil)
	_ repository.ModeratorRepository = (*ModeratorRepo)(nil)
)

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		(err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed"))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.ErrNotFound
	case isDuplicate(err):
		return errs.ErrAlreadyExists
	default:
		return errs.FromContext(err)
	}
}

func parseID(s string) uuid.UUID { return uuid.FromStringOrNil(s) }

func subjectRow(t model.SubjectType) (any, error) {
	switch t {
	case model.SubjectPost:
		return &postRow{}, nil
	case model.SubjectComment:
		return &commentRow{}, nil
	default:
		return nil, fmt.Errorf("subject type %q: %w", t, errs.ErrInvalidInput)
	}
}

package profiles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goodturn-social/goodturn/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

var ErrProfileNotFound = errors.New("unknown user profile")

// Store is the engine's view of the identity/profile collaborator: cached
// reads plus counter mutations. Mutators take the *gorm.DB they should run
// on so callers can issue them inside the transaction that triggered them;
// the cache is evicted immediately, which is conservative if the enclosing
// transaction later rolls back.
type Store struct {
	db     *gorm.DB
	Logger *slog.Logger

	cache *lru.Cache[uint64, *models.UserProfile]
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(models.UserProfile{}); err != nil {
		return nil, err
	}

	c, _ := lru.New[uint64, *models.UserProfile](100_000)

	return &Store{
		db:     db,
		Logger: slog.Default().With("system", "profiles"),
		cache:  c,
	}, nil
}

func (s *Store) GetProfile(ctx context.Context, uid uint64) (*models.UserProfile, error) {
	if p, ok := s.cache.Get(uid); ok {
		return p, nil
	}

	var p models.UserProfile
	if err := s.db.First(&p, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	s.cache.Add(uid, &p)
	return &p, nil
}

// Evict drops a cached profile. Mutators call this themselves; it is
// exported for callers which update profile rows directly.
func (s *Store) Evict(uid uint64) {
	s.cache.Remove(uid)
}

func (s *Store) IncrementHelpGiven(tx *gorm.DB, uid uint64, count int64, hours int64) error {
	err := tx.Model(models.UserProfile{}).Where("uid = ?", uid).
		Updates(map[string]any{
			"help_given":   gorm.Expr("help_given + ?", count),
			"hours_helped": gorm.Expr("hours_helped + ?", hours),
		}).Error
	if err != nil {
		return err
	}
	s.cache.Remove(uid)
	return nil
}

func (s *Store) IncrementHelpReceived(tx *gorm.DB, uid uint64, count int64) error {
	err := tx.Model(models.UserProfile{}).Where("uid = ?", uid).
		Update("help_received", gorm.Expr("help_received + ?", count)).Error
	if err != nil {
		return err
	}
	s.cache.Remove(uid)
	return nil
}

// AdjustCredits applies a signed delta to a user's credit balance.
func (s *Store) AdjustCredits(tx *gorm.DB, uid uint64, delta int64) error {
	err := tx.Model(models.UserProfile{}).Where("uid = ?", uid).
		Update("credits", gorm.Expr("credits + ?", delta)).Error
	if err != nil {
		return err
	}
	s.cache.Remove(uid)
	return nil
}

// AdjustVoteCredits applies a signed delta to a user's vote-credit budget.
func (s *Store) AdjustVoteCredits(tx *gorm.DB, uid uint64, delta int64) error {
	err := tx.Model(models.UserProfile{}).Where("uid = ?", uid).
		Update("vote_credits", gorm.Expr("vote_credits + ?", delta)).Error
	if err != nil {
		return err
	}
	s.cache.Remove(uid)
	return nil
}

func (s *Store) TouchLastActive(ctx context.Context, uid uint64) error {
	err := s.db.Model(models.UserProfile{}).Where("uid = ?", uid).
		Update("last_active_at", time.Now()).Error
	if err != nil {
		return err
	}
	s.cache.Remove(uid)
	return nil
}

// ActiveUserCount returns the number of users active since the cutoff.
// Queried fresh at every decision point, never cached.
func (s *Store) ActiveUserCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(models.UserProfile{}).Where("last_active_at > ?", since).Count(&count).Error
	return count, err
}

// CandidateQuery describes a search for witness or jury candidates.
type CandidateQuery struct {
	Neighborhood string
	ActiveSince  time.Time
	MinHelpGiven int64
	Ranked       bool
	Limit        int
	ExcludeUIDs  []uint64
}

func (s *Store) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.UserProfile, error) {
	dbq := s.db.Model(models.UserProfile{}).
		Where("last_active_at > ?", q.ActiveSince).
		Where("help_given >= ?", q.MinHelpGiven)

	if q.Neighborhood != "" {
		dbq = dbq.Where("neighborhood = ?", q.Neighborhood)
	}
	if len(q.ExcludeUIDs) > 0 {
		dbq = dbq.Where("uid NOT IN ?", q.ExcludeUIDs)
	}
	if q.Ranked {
		dbq = dbq.Order("help_given desc")
	}
	if q.Limit > 0 {
		dbq = dbq.Limit(q.Limit)
	}

	var out []models.UserProfile
	if err := dbq.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

package profiles

import (
	"context"
	"testing"
	"time"

	"github.com/goodturn-social/goodturn/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)

	s, err := NewStore(db)
	require.NoError(t, err)
	return s, db
}

func TestGetProfileCaches(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t)

	require.NoError(t, db.Create(&models.UserProfile{
		UID: 1, Handle: "alice", HelpGiven: 3,
		JoinedAt: time.Now(), LastActiveAt: time.Now(),
	}).Error)

	p, err := s.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal("alice", p.Handle)

	// a direct row update is invisible until the cache is evicted
	require.NoError(t, db.Model(models.UserProfile{}).Where("uid = 1").Update("help_given", 9).Error)

	stale, err := s.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal(int64(3), stale.HelpGiven)

	s.Evict(1)
	fresh, err := s.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal(int64(9), fresh.HelpGiven)
}

func TestGetProfileNotFound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _ := testStore(t)

	_, err := s.GetProfile(ctx, 42)
	assert.ErrorIs(err, ErrProfileNotFound)
}

func TestCounterMutatorsEvict(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t)

	require.NoError(t, db.Create(&models.UserProfile{
		UID: 1, Handle: "bob", JoinedAt: time.Now(), LastActiveAt: time.Now(),
	}).Error)

	// warm the cache
	_, err := s.GetProfile(ctx, 1)
	assert.NoError(err)

	assert.NoError(s.IncrementHelpGiven(db, 1, 1, 4))
	assert.NoError(s.IncrementHelpReceived(db, 1, 2))
	assert.NoError(s.AdjustCredits(db, 1, 10))
	assert.NoError(s.AdjustCredits(db, 1, -3))
	assert.NoError(s.AdjustVoteCredits(db, 1, 5))

	p, err := s.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal(int64(1), p.HelpGiven)
	assert.Equal(int64(4), p.HoursHelped)
	assert.Equal(int64(2), p.HelpReceived)
	assert.Equal(int64(7), p.Credits)
	assert.Equal(int64(5), p.VoteCredits)
}

func TestTouchLastActiveAndActiveCount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t)

	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.UserProfile{
		UID: 1, Handle: "dormant", JoinedAt: old, LastActiveAt: old,
	}).Error)
	require.NoError(t, db.Create(&models.UserProfile{
		UID: 2, Handle: "active", JoinedAt: old, LastActiveAt: time.Now(),
	}).Error)

	count, err := s.ActiveUserCount(ctx, time.Now().Add(-30*24*time.Hour))
	assert.NoError(err)
	assert.Equal(int64(1), count)

	assert.NoError(s.TouchLastActive(ctx, 1))

	count, err = s.ActiveUserCount(ctx, time.Now().Add(-30*24*time.Hour))
	assert.NoError(err)
	assert.Equal(int64(2), count)
}

func TestFindCandidates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db := testStore(t)

	now := time.Now()
	mk := func(uid uint64, handle, hood string, helpGiven int64, active time.Time) {
		require.NoError(t, db.Create(&models.UserProfile{
			UID: uid, Handle: handle, Neighborhood: hood, HelpGiven: helpGiven,
			JoinedAt: now, LastActiveAt: active,
		}).Error)
	}

	mk(1, "top", "elm", 40, now)
	mk(2, "mid", "elm", 20, now)
	mk(3, "othertown", "oak", 60, now)
	mk(4, "idle", "elm", 80, now.Add(-10*24*time.Hour))
	mk(5, "junior", "elm", 3, now)

	got, err := s.FindCandidates(ctx, CandidateQuery{
		Neighborhood: "elm",
		ActiveSince:  now.Add(-7 * 24 * time.Hour),
		MinHelpGiven: 10,
		Ranked:       true,
		Limit:        5,
	})
	assert.NoError(err)
	require.Len(t, got, 2)
	assert.Equal(uint64(1), got[0].UID)
	assert.Equal(uint64(2), got[1].UID)

	// no neighborhood means network-wide
	got, err = s.FindCandidates(ctx, CandidateQuery{
		ActiveSince:  now.Add(-7 * 24 * time.Hour),
		MinHelpGiven: 10,
		Ranked:       true,
		Limit:        5,
		ExcludeUIDs:  []uint64{1},
	})
	assert.NoError(err)
	require.Len(t, got, 2)
	assert.Equal(uint64(3), got[0].UID)
	assert.Equal(uint64(2), got[1].UID)
}

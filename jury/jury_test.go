package jury

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/goodturn-social/goodturn/content"
	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testJury(t *testing.T) (*Jury, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.BlockValidation{}, models.TrustBlock{}))

	pstore, err := profiles.NewStore(db)
	require.NoError(t, err)
	rep := reputation.NewEngine(db, pstore)
	nm, err := notifs.NewNotificationManager(db)
	require.NoError(t, err)
	cstore, err := content.NewStore(db, nm)
	require.NoError(t, err)
	evtman := events.NewEventManager()
	go evtman.Run()
	t.Cleanup(evtman.Shutdown)

	j, err := NewJury(db, pstore, rep, cstore, nm, evtman)
	require.NoError(t, err)
	return j, db
}

// seedJuror creates a profile whose reputation is connections scaled by
// the 1.2 recent-activity multiplier, so weight = connections*1.2/10.
func seedJuror(t *testing.T, db *gorm.DB, uid uint64, handle string, connections int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserProfile{
		UID:          uid,
		Handle:       handle,
		Connections:  connections,
		JoinedAt:     time.Now(),
		LastActiveAt: time.Now(),
	}).Error)
}

func seedPost(t *testing.T, db *gorm.DB, authorUID uint64, title string) content.ContentRef {
	t.Helper()
	post := &models.Post{AuthorUID: authorUID, Title: title}
	require.NoError(t, db.Create(post).Error)
	return content.ContentRef{Type: content.TypePost, ID: uint64(post.ID)}
}

func TestOpenCase(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	ref := seedPost(t, db, 1, "questionable advice")

	mcase, err := j.OpenCase(ctx, ref, "misinformation", 2)
	assert.NoError(err)
	assert.Equal(models.CaseStatusVoting, mcase.Status)
	assert.Equal(int64(5), mcase.Quorum)
	assert.WithinDuration(time.Now().Add(24*time.Hour), mcase.Deadline, time.Minute)
}

func TestOpenCaseMissingContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, _ := testJury(t)

	_, err := j.OpenCase(ctx, content.ContentRef{Type: content.TypePost, ID: 404}, "spam", 2)
	assert.ErrorIs(err, content.ErrContentNotFound)
}

func TestJuryRemovesOnWeightedMajority(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	// connections*1.2/10: 35 -> weight 4, 25 -> 3, 20 -> 2
	seedJuror(t, db, 10, "w4-a", 35)
	seedJuror(t, db, 11, "w4-b", 35)
	seedJuror(t, db, 12, "w2", 20)
	seedJuror(t, db, 13, "w3-a", 25)
	seedJuror(t, db, 14, "w3-b", 25)

	ref := seedPost(t, db, 1, "spammy listing")
	mcase, err := j.OpenCase(ctx, ref, "spam", 2)
	require.NoError(t, err)

	vote, err := j.Vote(ctx, mcase.ID, 10, models.ModerationRemove, "clearly spam")
	assert.NoError(err)
	assert.Equal(int64(4), vote.Weight)

	_, err = j.Vote(ctx, mcase.ID, 11, models.ModerationRemove, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 12, models.ModerationRemove, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 13, models.ModerationKeep, "seems fine")
	assert.NoError(err)

	// four of five quorum votes in; still open
	open, err := j.GetCase(ctx, mcase.ID)
	assert.NoError(err)
	assert.Equal(models.CaseStatusVoting, open.Status)

	_, err = j.Vote(ctx, mcase.ID, 14, models.ModerationKeep, "")
	assert.NoError(err)

	// REMOVE carries weight 10 against KEEP's 6
	done, err := j.GetCase(ctx, mcase.ID)
	assert.NoError(err)
	assert.Equal(models.CaseStatusExecuted, done.Status)
	assert.Equal(models.ModerationRemove, done.FinalDecision)
	assert.NotNil(done.ExecutedAt)

	// the post is soft-deleted
	var gone models.Post
	err = db.First(&gone, "id = ?", ref.ID).Error
	assert.ErrorIs(err, gorm.ErrRecordNotFound)

	// winning jurors earn credits, losing jurors do not
	winner, err := j.Profiles.GetProfile(ctx, 10)
	assert.NoError(err)
	assert.Equal(int64(3), winner.Credits)
	loser, err := j.Profiles.GetProfile(ctx, 13)
	assert.NoError(err)
	assert.Equal(int64(0), loser.Credits)
}

func TestJuryTieKeepsContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	for uid := uint64(10); uid < 15; uid++ {
		seedJuror(t, db, uid, "juror-"+strconv.FormatUint(uid, 10), 25) // weight 3 each
	}

	ref := seedPost(t, db, 1, "borderline")
	mcase, err := j.OpenCase(ctx, ref, "maybe spam", 2)
	require.NoError(t, err)

	// 2x REMOVE, 2x WARN, 1x KEEP: 6 vs 6 vs 3, no side beats KEEP's tie rule
	_, err = j.Vote(ctx, mcase.ID, 10, models.ModerationRemove, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 11, models.ModerationRemove, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 12, models.ModerationWarn, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 13, models.ModerationWarn, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 14, models.ModerationKeep, "")
	assert.NoError(err)

	done, err := j.GetCase(ctx, mcase.ID)
	assert.NoError(err)
	assert.Equal(models.CaseStatusExecuted, done.Status)
	// REMOVE and WARN tie and neither strictly beats the other, so the
	// REMOVE-over-KEEP comparison wins first
	assert.Equal(models.ModerationRemove, done.FinalDecision)

	var still models.Post
	err = db.First(&still, "id = ?", ref.ID).Error
	assert.ErrorIs(err, gorm.ErrRecordNotFound)
}

func TestTallyDecisionTieFavorsKeep(t *testing.T) {
	assert := assert.New(t)

	votes := []models.ModerationVote{
		{Decision: models.ModerationKeep, Weight: 5},
		{Decision: models.ModerationRemove, Weight: 5},
	}
	assert.Equal(models.ModerationKeep, TallyDecision(votes))

	votes = append(votes, models.ModerationVote{Decision: models.ModerationRemove, Weight: 1})
	assert.Equal(models.ModerationRemove, TallyDecision(votes))

	assert.Equal(models.ModerationKeep, TallyDecision(nil))
}

func TestJuryVoteTwice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	seedJuror(t, db, 10, "juror", 25)

	ref := seedPost(t, db, 1, "post")
	mcase, err := j.OpenCase(ctx, ref, "spam", 2)
	require.NoError(t, err)

	_, err = j.Vote(ctx, mcase.ID, 10, models.ModerationKeep, "")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 10, models.ModerationRemove, "")
	assert.ErrorIs(err, ErrAlreadyVoted)
}

func TestJuryVoteAfterDeadline(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	seedJuror(t, db, 10, "juror", 25)

	ref := seedPost(t, db, 1, "post")
	mcase, err := j.OpenCase(ctx, ref, "spam", 2)
	require.NoError(t, err)

	require.NoError(t, db.Model(models.ModerationCase{}).Where("id = ?", mcase.ID).
		Update("deadline", time.Now().Add(-time.Minute)).Error)

	_, err = j.Vote(ctx, mcase.ID, 10, models.ModerationRemove, "")
	assert.ErrorIs(err, ErrVotingClosed)
}

func TestJuryVoteUnknownCase(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, _ := testJury(t)

	_, err := j.Vote(ctx, 999, 10, models.ModerationKeep, "")
	assert.ErrorIs(err, ErrCaseNotFound)
}

func TestSweepExpiredExecutesOnPlurality(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	seedJuror(t, db, 10, "warner", 35) // weight 4
	seedJuror(t, db, 11, "keeper", 25) // weight 3

	ref := seedPost(t, db, 1, "stale report")
	mcase, err := j.OpenCase(ctx, ref, "off topic", 2)
	require.NoError(t, err)

	_, err = j.Vote(ctx, mcase.ID, 10, models.ModerationWarn, "tone it down")
	assert.NoError(err)
	_, err = j.Vote(ctx, mcase.ID, 11, models.ModerationKeep, "")
	assert.NoError(err)

	require.NoError(t, db.Model(models.ModerationCase{}).Where("id = ?", mcase.ID).
		Update("deadline", time.Now().Add(-time.Minute)).Error)

	assert.NoError(j.SweepExpired(ctx))

	done, err := j.GetCase(ctx, mcase.ID)
	assert.NoError(err)
	assert.Equal(models.CaseStatusExecuted, done.Status)
	assert.Equal(models.ModerationWarn, done.FinalDecision)

	// the author got a warning notification
	warned, err := j.Notifs.ForRecipient(ctx, 1)
	assert.NoError(err)
	require.Len(t, warned, 1)
	assert.Equal(notifs.KindContentWarning, warned[0].Kind)
}

func TestSweepExpiredNoVotesKeeps(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	j, db := testJury(t)

	seedJuror(t, db, 1, "author", 0)
	ref := seedPost(t, db, 1, "ignored report")
	mcase, err := j.OpenCase(ctx, ref, "spam", 2)
	require.NoError(t, err)

	require.NoError(t, db.Model(models.ModerationCase{}).Where("id = ?", mcase.ID).
		Update("deadline", time.Now().Add(-time.Minute)).Error)

	assert.NoError(j.SweepExpired(ctx))

	done, err := j.GetCase(ctx, mcase.ID)
	assert.NoError(err)
	assert.Equal(models.CaseStatusExecuted, done.Status)
	assert.Equal(models.ModerationKeep, done.FinalDecision)

	// content untouched
	var still models.Post
	assert.NoError(db.First(&still, "id = ?", ref.ID).Error)
}

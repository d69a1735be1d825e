package consensus

import (
	"context"
	"fmt"
	"testing"
	"time"

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

func testConsensus(t *testing.T) (*Consensus, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.TrustBlock{}))

	pstore, err := profiles.NewStore(db)
	require.NoError(t, err)
	rep := reputation.NewEngine(db, pstore)
	nm, err := notifs.NewNotificationManager(db)
	require.NoError(t, err)
	evtman := events.NewEventManager()
	go evtman.Run()
	t.Cleanup(evtman.Shutdown)

	c, err := NewConsensus(db, pstore, rep, nm, evtman)
	require.NoError(t, err)
	return c, db
}

// seedValidator gives the user a profile whose stake is exactly
// 2*helpGiven (no help hours).
func seedValidator(t *testing.T, db *gorm.DB, uid uint64, handle string, helpGiven int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserProfile{
		UID:          uid,
		Handle:       handle,
		HelpGiven:    helpGiven,
		JoinedAt:     time.Now(),
		LastActiveAt: time.Now(),
	}).Error)
}

func seedPendingBlock(t *testing.T, db *gorm.DB, typ models.BlockType, actorUID uint64, content string) *models.TrustBlock {
	t.Helper()
	var height uint64
	db.Model(models.TrustBlock{}).Select("coalesce(max(height), 0)").Scan(&height)
	block := &models.TrustBlock{
		Height:     height + 1,
		Hash:       fakeHash(height + 1),
		PrevHash:   "prev",
		Type:       typ,
		ActorUID:   actorUID,
		Content:    content,
		Difficulty: 1,
		Status:     models.BlockStatusPending,
	}
	require.NoError(t, db.Create(block).Error)
	return block
}

func fakeHash(height uint64) string {
	return fmt.Sprintf("hash-%d", height)
}

func TestConsensusFinalizesOnSupermajority(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "big", 20)    // stake 40
	seedValidator(t, db, 3, "bigger", 25) // stake 50
	seedValidator(t, db, 4, "small", 10)  // stake 20

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, `{"hours":4}`)

	v, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "saw it happen")
	assert.NoError(err)
	assert.Equal(int64(40), v.Stake)

	_, err = c.ValidateBlock(ctx, block.ID, 3, models.DecisionApprove, "")
	assert.NoError(err)

	// two of three required votes are in; the block must still be pending
	var pending models.TrustBlock
	require.NoError(t, db.First(&pending, "id = ?", block.ID).Error)
	assert.Equal(models.BlockStatusPending, pending.Status)

	_, err = c.ValidateBlock(ctx, block.ID, 4, models.DecisionReject, "did not see it")
	assert.NoError(err)

	// approval stake 90 of 110 clears the 0.66 supermajority
	var final models.TrustBlock
	require.NoError(t, db.First(&final, "id = ?", block.ID).Error)
	assert.Equal(models.BlockStatusApproved, final.Status)

	actor, err := c.Profiles.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal(int64(11), actor.HelpGiven)
	assert.Equal(int64(4), actor.HoursHelped)

	winner, err := c.Profiles.GetProfile(ctx, 2)
	assert.NoError(err)
	assert.Equal(int64(2), winner.Credits)
	assert.Equal(int64(1), winner.VoteCredits)

	loser, err := c.Profiles.GetProfile(ctx, 4)
	assert.NoError(err)
	assert.Equal(int64(0), loser.Credits)
	assert.Equal(int64(0), loser.VoteCredits)
}

func TestConsensusStaysPendingWithoutSupermajority(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "approver", 25)  // stake 50
	seedValidator(t, db, 3, "rejector", 20)  // stake 40
	seedValidator(t, db, 4, "rejector2", 10) // stake 20

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")

	_, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "")
	assert.NoError(err)
	_, err = c.ValidateBlock(ctx, block.ID, 3, models.DecisionReject, "")
	assert.NoError(err)
	_, err = c.ValidateBlock(ctx, block.ID, 4, models.DecisionReject, "")
	assert.NoError(err)

	// approval 50 and rejection 60 both fall short of 0.66 of 110
	var after models.TrustBlock
	require.NoError(t, db.First(&after, "id = ?", block.ID).Error)
	assert.Equal(models.BlockStatusPending, after.Status)
}

func TestConsensusRejectionPenalizesActor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "v2", 30)
	seedValidator(t, db, 3, "v3", 30)
	seedValidator(t, db, 4, "v4", 30)

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")

	for uid := uint64(2); uid <= 4; uid++ {
		_, err := c.ValidateBlock(ctx, block.ID, uid, models.DecisionReject, "fabricated")
		assert.NoError(err)
	}

	var after models.TrustBlock
	require.NoError(t, db.First(&after, "id = ?", block.ID).Error)
	assert.Equal(models.BlockStatusRejected, after.Status)

	actor, err := c.Profiles.GetProfile(ctx, 1)
	assert.NoError(err)
	assert.Equal(int64(-5), actor.Credits)
	assert.Equal(int64(10), actor.HelpGiven)
}

func TestValidateBlockTwice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "v", 20)

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")

	_, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "")
	assert.NoError(err)

	_, err = c.ValidateBlock(ctx, block.ID, 2, models.DecisionReject, "changed my mind")
	assert.ErrorIs(err, ErrAlreadyValidated)

	votes, err := c.Validations(ctx, block.ID)
	assert.NoError(err)
	assert.Len(votes, 1)
	assert.Equal(models.DecisionApprove, votes[0].Decision)
}

func TestValidateBlockLevelGate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "novice", 5)
	seedValidator(t, db, 3, "level1", 10)

	block := seedPendingBlock(t, db, models.BlockTypeDispute, 1, "{}")

	_, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "")
	var lvl *InsufficientValidatorLevelError
	assert.ErrorAs(err, &lvl)
	assert.Equal(0, lvl.Have)
	assert.Equal(3, lvl.Need)

	// level 1 is still short of the level 3 a dispute demands
	_, err = c.ValidateBlock(ctx, block.ID, 3, models.DecisionApprove, "")
	assert.ErrorAs(err, &lvl)
	assert.Equal(1, lvl.Have)
}

func TestValidateFinalizedBlock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 2, "late", 20)

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")
	require.NoError(t, db.Model(models.TrustBlock{}).Where("id = ?", block.ID).
		Update("status", models.BlockStatusApproved).Error)

	_, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "")
	assert.ErrorIs(err, ErrBlockAlreadyFinalized)
}

func TestValidateMissingBlockAndValidator(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 2, "v", 20)

	_, err := c.ValidateBlock(ctx, 999, 2, models.DecisionApprove, "")
	assert.ErrorIs(err, ErrBlockNotFound)

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")
	_, err = c.ValidateBlock(ctx, block.ID, 999, models.DecisionApprove, "")
	assert.ErrorIs(err, ErrValidatorNotFound)
}

func TestValidatedEventCarriesPostVoteStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "v2", 30)
	seedValidator(t, db, 3, "v3", 30)
	seedValidator(t, db, 4, "v4", 30)

	sub := c.Events.Subscribe(func(evt *events.EngineEvent) bool {
		return evt.Kind == events.EvtBlockValidated
	})
	defer sub.Unsubscribe()

	block := seedPendingBlock(t, db, models.BlockTypeHelp, 1, "{}")

	for uid := uint64(2); uid <= 4; uid++ {
		_, err := c.ValidateBlock(ctx, block.ID, uid, models.DecisionApprove, "")
		assert.NoError(err)
	}

	statuses := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case evt := <-sub.Events():
			statuses = append(statuses, evt.Block.Status)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for validated events")
		}
	}

	// the first two votes leave the block pending; the third finalizes it
	assert.Equal([]string{
		string(models.BlockStatusPending),
		string(models.BlockStatusPending),
		string(models.BlockStatusApproved),
	}, statuses)
}

func TestValidationBlockFinalizesOnSingleVote(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, db := testConsensus(t)

	seedValidator(t, db, 1, "actor", 10)
	seedValidator(t, db, 2, "solo", 20)

	block := seedPendingBlock(t, db, models.BlockTypeValidation, 1, "{}")

	_, err := c.ValidateBlock(ctx, block.ID, 2, models.DecisionApprove, "")
	assert.NoError(err)

	var after models.TrustBlock
	require.NoError(t, db.First(&after, "id = ?", block.ID).Error)
	assert.Equal(models.BlockStatusApproved, after.Status)
}

package content

import (
	"context"
	"testing"

	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) (*Store, *gorm.DB, *notifs.NotificationManager) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)

	nm, err := notifs.NewNotificationManager(db)
	require.NoError(t, err)
	s, err := NewStore(db, nm)
	require.NoError(t, err)
	return s, db, nm
}

func TestFetchSummary(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db, _ := testStore(t)

	post := &models.Post{AuthorUID: 7, Title: "free firewood"}
	require.NoError(t, db.Create(post).Error)
	offer := &models.Offer{AuthorUID: 8, Title: "bike repair", Hours: 2}
	require.NoError(t, db.Create(offer).Error)
	entry := &models.TimebankEntry{FromUID: 9, ToUID: 7, Hours: 3, Note: "moving boxes"}
	require.NoError(t, db.Create(entry).Error)
	community := &models.Community{Name: "Swap Meet"}
	require.NoError(t, db.Create(community).Error)

	sum, err := s.FetchSummary(ctx, ContentRef{Type: TypePost, ID: uint64(post.ID)})
	assert.NoError(err)
	assert.Equal(uint64(7), sum.AuthorUID)
	assert.Equal("free firewood", sum.Title)
	assert.False(sum.Removed)

	sum, err = s.FetchSummary(ctx, ContentRef{Type: TypeOffer, ID: uint64(offer.ID)})
	assert.NoError(err)
	assert.Equal(uint64(8), sum.AuthorUID)

	sum, err = s.FetchSummary(ctx, ContentRef{Type: TypeTimebank, ID: uint64(entry.ID)})
	assert.NoError(err)
	assert.Equal(uint64(9), sum.AuthorUID)
	assert.Equal("moving boxes", sum.Title)

	sum, err = s.FetchSummary(ctx, ContentRef{Type: TypeCommunity, ID: community.ID})
	assert.NoError(err)
	assert.Equal(uint64(0), sum.AuthorUID)
	assert.Equal("Swap Meet", sum.Title)
}

func TestFetchSummaryNotFound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _, _ := testStore(t)

	_, err := s.FetchSummary(ctx, ContentRef{Type: TypePost, ID: 404})
	assert.ErrorIs(err, ErrContentNotFound)

	_, err = s.FetchSummary(ctx, ContentRef{Type: ContentType("GIF"), ID: 1})
	assert.ErrorIs(err, ErrUnknownContentType)
}

func TestRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db, _ := testStore(t)

	post := &models.Post{AuthorUID: 7, Title: "spam"}
	require.NoError(t, db.Create(post).Error)
	offer := &models.Offer{AuthorUID: 8, Title: "scam offer"}
	require.NoError(t, db.Create(offer).Error)

	assert.NoError(s.Remove(ctx, ContentRef{Type: TypePost, ID: uint64(post.ID)}))
	assert.NoError(s.Remove(ctx, ContentRef{Type: TypeOffer, ID: uint64(offer.ID)}))

	// posts get soft-deleted, offers get flagged
	var p models.Post
	err := db.First(&p, "id = ?", post.ID).Error
	assert.ErrorIs(err, gorm.ErrRecordNotFound)

	var o models.Offer
	require.NoError(t, db.First(&o, "id = ?", offer.ID).Error)
	assert.True(o.Cancelled)

	sum, err := s.FetchSummary(ctx, ContentRef{Type: TypeOffer, ID: uint64(offer.ID)})
	assert.NoError(err)
	assert.True(sum.Removed)
}

func TestWarnAuthor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db, nm := testStore(t)

	post := &models.Post{AuthorUID: 7, Title: "heated take"}
	require.NoError(t, db.Create(post).Error)

	err := s.WarnAuthor(ctx, ContentRef{Type: TypePost, ID: uint64(post.ID)}, "keep it civil")
	assert.NoError(err)

	notes, err := nm.ForRecipient(ctx, 7)
	assert.NoError(err)
	require.Len(t, notes, 1)
	assert.Equal(notifs.KindContentWarning, notes[0].Kind)
	assert.Contains(notes[0].Body, "keep it civil")

	// the post itself is untouched
	var p models.Post
	assert.NoError(db.First(&p, "id = ?", post.ID).Error)
}

func TestWarnAuthorCommunityNoop(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, db, _ := testStore(t)

	community := &models.Community{Name: "Drama Club"}
	require.NoError(t, db.Create(community).Error)

	err := s.WarnAuthor(ctx, ContentRef{Type: TypeCommunity, ID: community.ID}, "reported")
	assert.NoError(err)

	var count int64
	require.NoError(t, db.Model(models.NotifRecord{}).Count(&count).Error)
	assert.Equal(int64(0), count)
}

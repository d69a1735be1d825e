package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"

	"gorm.io/gorm"
)

var ErrContentNotFound = errors.New("unknown content")
var ErrUnknownContentType = errors.New("unrecognized content type")

type ContentType string

const (
	TypePost      = ContentType("POST")
	TypeOffer     = ContentType("OFFER")
	TypeEvent     = ContentType("EVENT")
	TypeTimebank  = ContentType("TIMEBANK")
	TypeCommunity = ContentType("COMMUNITY")
)

// ContentRef identifies a piece of reportable platform content.
type ContentRef struct {
	Type ContentType
	ID   uint64
}

// Summary is the moderation-facing view of a content item.
type Summary struct {
	Ref       ContentRef
	AuthorUID uint64
	Title     string
	Removed   bool
}

// Store gives the moderation jury its three capabilities over reported
// content: fetch a summary, remove it, or warn its author. The type switch
// lives here so call sites stay free of per-type dispatch.
type Store struct {
	db     *gorm.DB
	notifs *notifs.NotificationManager
	Logger *slog.Logger
}

func NewStore(db *gorm.DB, nm *notifs.NotificationManager) (*Store, error) {
	for _, m := range []any{
		models.Post{}, models.Offer{}, models.CommunityEvent{},
		models.TimebankEntry{}, models.Community{}, models.CommunityMember{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			return nil, err
		}
	}

	return &Store{
		db:     db,
		notifs: nm,
		Logger: slog.Default().With("system", "content"),
	}, nil
}

func (s *Store) FetchSummary(ctx context.Context, ref ContentRef) (*Summary, error) {
	wrap := func(author uint64, title string, removed bool, err error) (*Summary, error) {
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrContentNotFound
			}
			return nil, err
		}
		return &Summary{Ref: ref, AuthorUID: author, Title: title, Removed: removed}, nil
	}

	switch ref.Type {
	case TypePost:
		var p models.Post
		err := s.db.First(&p, "id = ?", ref.ID).Error
		return wrap(p.AuthorUID, p.Title, !p.DeletedAt.Time.IsZero(), err)
	case TypeOffer:
		var o models.Offer
		err := s.db.First(&o, "id = ?", ref.ID).Error
		return wrap(o.AuthorUID, o.Title, o.Cancelled, err)
	case TypeEvent:
		var e models.CommunityEvent
		err := s.db.First(&e, "id = ?", ref.ID).Error
		return wrap(e.AuthorUID, e.Title, e.Cancelled, err)
	case TypeTimebank:
		var t models.TimebankEntry
		err := s.db.First(&t, "id = ?", ref.ID).Error
		return wrap(t.FromUID, t.Note, t.Cancelled, err)
	case TypeCommunity:
		var c models.Community
		err := s.db.First(&c, "id = ?", ref.ID).Error
		return wrap(0, c.Name, c.Dissolved, err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, ref.Type)
	}
}

// Remove takes reported content down: posts are soft-deleted, offers,
// events and timebank entries are cancelled, communities are flagged
// dissolved.
func (s *Store) Remove(ctx context.Context, ref ContentRef) error {
	switch ref.Type {
	case TypePost:
		return s.db.Delete(&models.Post{}, "id = ?", ref.ID).Error
	case TypeOffer:
		return s.db.Model(models.Offer{}).Where("id = ?", ref.ID).Update("cancelled", true).Error
	case TypeEvent:
		return s.db.Model(models.CommunityEvent{}).Where("id = ?", ref.ID).Update("cancelled", true).Error
	case TypeTimebank:
		return s.db.Model(models.TimebankEntry{}).Where("id = ?", ref.ID).Update("cancelled", true).Error
	case TypeCommunity:
		return s.db.Model(models.Community{}).Where("id = ?", ref.ID).Update("dissolved", true).Error
	default:
		return fmt.Errorf("%w: %s", ErrUnknownContentType, ref.Type)
	}
}

// WarnAuthor notifies the content's author of a moderation warning without
// touching the content itself.
func (s *Store) WarnAuthor(ctx context.Context, ref ContentRef, reason string) error {
	sum, err := s.FetchSummary(ctx, ref)
	if err != nil {
		return err
	}
	if sum.AuthorUID == 0 {
		// communities have no single author to warn
		return nil
	}

	s.notifs.Send(ctx, notifs.Notification{
		RecipientUID: sum.AuthorUID,
		Kind:         notifs.KindContentWarning,
		Title:        "Moderation warning",
		Body:         fmt.Sprintf("Your %s was reviewed by the community jury: %s", ref.Type, reason),
		Data:         map[string]any{"contentType": ref.Type, "contentId": ref.ID},
	})
	return nil
}

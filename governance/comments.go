package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"

	"gorm.io/gorm"
)

// CommentThread is a top-level comment with its direct replies; nesting
// goes one level deep.
type CommentThread struct {
	Comment models.ProposalComment
	Replies []models.ProposalComment
}

// CreateComment adds a comment (or a single-level reply) to a proposal's
// discussion and fans out notifications to the proposal author and, for
// replies, the parent comment's author.
func (g *Governance) CreateComment(ctx context.Context, proposalID uint64, authorUID uint64, parentID *uint64, body string) (*models.ProposalComment, error) {
	prop, err := g.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	var parent *models.ProposalComment
	if parentID != nil {
		var pc models.ProposalComment
		if err := g.db.First(&pc, "id = ? AND proposal_id = ?", *parentID, proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCommentNotFound
			}
			return nil, err
		}
		if pc.ParentID != nil {
			return nil, ErrReplyDepthExceeded
		}
		parent = &pc
	}

	comment := &models.ProposalComment{
		ProposalID: proposalID,
		AuthorUID:  authorUID,
		ParentID:   parentID,
		Body:       body,
	}
	if err := g.db.Create(comment).Error; err != nil {
		return nil, err
	}

	if prop.AuthorUID != authorUID {
		g.Notifs.Send(ctx, notifs.Notification{
			RecipientUID: prop.AuthorUID,
			Kind:         notifs.KindProposalComment,
			Title:        "New comment on your proposal",
			Body:         fmt.Sprintf("Your proposal %q has a new comment", prop.Title),
			Data:         map[string]any{"proposalId": proposalID, "commentId": comment.ID},
		})
	}
	if parent != nil && parent.AuthorUID != authorUID && parent.AuthorUID != prop.AuthorUID {
		g.Notifs.Send(ctx, notifs.Notification{
			RecipientUID: parent.AuthorUID,
			Kind:         notifs.KindCommentReply,
			Title:        "Reply to your comment",
			Body:         fmt.Sprintf("Someone replied to your comment on %q", prop.Title),
			Data:         map[string]any{"proposalId": proposalID, "commentId": comment.ID},
		})
	}

	return comment, nil
}

// GetComments returns the proposal's comments as threads, oldest first.
func (g *Governance) GetComments(ctx context.Context, proposalID uint64) ([]CommentThread, error) {
	if _, err := g.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}

	var all []models.ProposalComment
	if err := g.db.Order("created_at asc").Find(&all, "proposal_id = ?", proposalID).Error; err != nil {
		return nil, err
	}

	threads := []CommentThread{}
	index := map[uint64]int{}
	for _, c := range all {
		if c.ParentID == nil {
			index[c.ID] = len(threads)
			threads = append(threads, CommentThread{Comment: c})
		}
	}
	for _, c := range all {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}

	return threads, nil
}

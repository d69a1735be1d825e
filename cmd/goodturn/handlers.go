package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goodturn-social/goodturn/consensus"
	"github.com/goodturn-social/goodturn/content"
	"github.com/goodturn-social/goodturn/governance"
	"github.com/goodturn-social/goodturn/jury"
	"github.com/goodturn-social/goodturn/ledger"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps engine errors onto the API's status codes: precondition
// failures and bad requests are 400, conflicts 409, unknown subjects 404,
// rate limiting 429, and the mining liveness bound a retryable 503.
func (svc *Service) writeError(c echo.Context, err error) error {
	var insufficientWork *ledger.InsufficientWorkError
	var insufficientLevel *consensus.InsufficientValidatorLevelError
	var insufficientRep *governance.InsufficientReputationError
	var insufficientCredits *governance.InsufficientVoteCreditsError

	switch {
	case errors.As(err, &insufficientWork):
		return c.JSON(http.StatusBadRequest, APIError{Error: "InsufficientWork", Message: err.Error()})
	case errors.As(err, &insufficientLevel):
		return c.JSON(http.StatusBadRequest, APIError{Error: "InsufficientValidatorLevel", Message: err.Error()})
	case errors.As(err, &insufficientRep):
		return c.JSON(http.StatusBadRequest, APIError{Error: "InsufficientReputation", Message: err.Error()})
	case errors.As(err, &insufficientCredits):
		return c.JSON(http.StatusBadRequest, APIError{Error: "InsufficientVoteCredits", Message: err.Error()})

	case errors.Is(err, consensus.ErrAlreadyValidated),
		errors.Is(err, jury.ErrAlreadyVoted):
		return c.JSON(http.StatusConflict, APIError{Error: "AlreadyVoted", Message: err.Error()})
	case errors.Is(err, consensus.ErrBlockAlreadyFinalized),
		errors.Is(err, jury.ErrCaseNotInVoting),
		errors.Is(err, jury.ErrVotingClosed),
		errors.Is(err, governance.ErrProposalNotInVoting),
		errors.Is(err, governance.ErrVotingClosed):
		return c.JSON(http.StatusConflict, APIError{Error: "VotingClosed", Message: err.Error()})

	case errors.Is(err, consensus.ErrBlockNotFound),
		errors.Is(err, jury.ErrCaseNotFound),
		errors.Is(err, governance.ErrProposalNotFound),
		errors.Is(err, governance.ErrCommentNotFound),
		errors.Is(err, content.ErrContentNotFound),
		errors.Is(err, profiles.ErrProfileNotFound),
		errors.Is(err, consensus.ErrValidatorNotFound):
		return c.JSON(http.StatusNotFound, APIError{Error: "NotFound", Message: err.Error()})

	case errors.Is(err, ledger.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, APIError{Error: "RateLimited", Message: err.Error()})
	case errors.Is(err, ledger.ErrMiningExhausted):
		return c.JSON(http.StatusServiceUnavailable, APIError{Error: "MiningExhausted", Message: err.Error()})

	case errors.Is(err, ledger.ErrUnknownBlockType),
		errors.Is(err, content.ErrUnknownContentType),
		errors.Is(err, governance.ErrReplyDepthExceeded):
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: err.Error()})
	}

	svc.logger.Error("request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, APIError{Error: "InternalError", Message: "unexpected error"})
}

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

type createBlockRequest struct {
	Type      models.BlockType `json:"type"`
	ActorUID  uint64           `json:"actorUid"`
	Content   string           `json:"content"`
	Witnesses []uint64         `json:"witnesses,omitempty"`
}

func (svc *Service) handleCreateBlock(c echo.Context) error {
	ctx := c.Request().Context()

	var req createBlockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}

	block, err := svc.ledger.CreateBlock(ctx, req.Type, req.ActorUID, req.Content, req.Witnesses)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, block)
}

func (svc *Service) handleListBlocks(c echo.Context) error {
	ctx := c.Request().Context()

	after, _ := strconv.ParseUint(c.QueryParam("afterHeight"), 10, 64)
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}

	blocks, err := svc.ledger.ListBlocks(ctx, after, limit)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusOK, blocks)
}

func (svc *Service) handleGetBlock(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid block id"})
	}

	block, err := svc.ledger.GetBlock(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = consensus.ErrBlockNotFound
		}
		return svc.writeError(c, err)
	}
	validations, err := svc.consensus.Validations(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"block":       block,
		"validations": validations,
	})
}

type validateBlockRequest struct {
	ValidatorUID uint64                    `json:"validatorUid"`
	Decision     models.ValidationDecision `json:"decision"`
	Reason       string                    `json:"reason,omitempty"`
}

func (svc *Service) handleValidateBlock(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid block id"})
	}

	var req validateBlockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "decision must be APPROVE or REJECT"})
	}

	validation, err := svc.consensus.ValidateBlock(ctx, id, req.ValidatorUID, req.Decision, req.Reason)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, validation)
}

func (svc *Service) handleVerifyChain(c echo.Context) error {
	ctx := c.Request().Context()

	if err := svc.ledger.VerifyChain(ctx); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": true})
}

type openCaseRequest struct {
	ContentType content.ContentType `json:"contentType"`
	ContentID   uint64              `json:"contentId"`
	Reason      string              `json:"reason"`
	ReporterUID uint64              `json:"reporterUid,omitempty"`
}

func (svc *Service) handleOpenCase(c echo.Context) error {
	ctx := c.Request().Context()

	var req openCaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}

	ref := content.ContentRef{Type: req.ContentType, ID: req.ContentID}
	mcase, err := svc.jury.OpenCase(ctx, ref, req.Reason, req.ReporterUID)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, mcase)
}

func (svc *Service) handleGetCase(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid case id"})
	}

	mcase, err := svc.jury.GetCase(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}
	votes, err := svc.jury.Votes(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"case":  mcase,
		"votes": votes,
	})
}

type moderationVoteRequest struct {
	VoterUID uint64                    `json:"voterUid"`
	Decision models.ModerationDecision `json:"decision"`
	Reason   string                    `json:"reason,omitempty"`
}

func (svc *Service) handleModerationVote(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid case id"})
	}

	var req moderationVoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}
	switch req.Decision {
	case models.ModerationKeep, models.ModerationRemove, models.ModerationWarn:
	default:
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "decision must be KEEP, REMOVE or WARN"})
	}

	vote, err := svc.jury.Vote(ctx, id, req.VoterUID, req.Decision, req.Reason)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, vote)
}

type createProposalRequest struct {
	AuthorUID   uint64              `json:"authorUid"`
	Type        models.ProposalType `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Params      string              `json:"params,omitempty"`
}

func (svc *Service) handleCreateProposal(c echo.Context) error {
	ctx := c.Request().Context()

	var req createProposalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "title is required"})
	}

	prop, err := svc.governance.CreateProposal(ctx, req.AuthorUID, req.Type, req.Title, req.Description, req.Params)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, prop)
}

func (svc *Service) handleListProposals(c echo.Context) error {
	ctx := c.Request().Context()

	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}

	props, err := svc.governance.ListProposals(ctx, limit)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusOK, props)
}

func (svc *Service) handleGetProposal(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid proposal id"})
	}

	prop, err := svc.governance.GetProposal(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}
	votes, err := svc.governance.Votes(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"proposal": prop,
		"votes":    votes,
	})
}

type proposalVoteRequest struct {
	VoterUID uint64 `json:"voterUid"`
	Points   int64  `json:"points"`
}

func (svc *Service) handleProposalVote(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid proposal id"})
	}

	var req proposalVoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}

	vote, err := svc.governance.Vote(ctx, id, req.VoterUID, req.Points)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, vote)
}

type createCommentRequest struct {
	AuthorUID uint64  `json:"authorUid"`
	ParentID  *uint64 `json:"parentId,omitempty"`
	Body      string  `json:"body"`
}

func (svc *Service) handleCreateComment(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid proposal id"})
	}

	var req createCommentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid request body"})
	}
	if req.Body == "" {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "body is required"})
	}

	comment, err := svc.governance.CreateComment(ctx, id, req.AuthorUID, req.ParentID, req.Body)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (svc *Service) handleGetReputation(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid user id"})
	}

	p, err := svc.rep.Profiles.GetProfile(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}
	rep, err := svc.rep.Reputation(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}
	work, err := svc.rep.Work(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"uid":            id,
		"reputation":     rep,
		"work":           work,
		"validatorLevel": reputation.ValidatorLevel(p),
		"stake":          reputation.Stake(p),
	})
}

func (svc *Service) handleGetComments(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Error: "BadRequest", Message: "invalid proposal id"})
	}

	threads, err := svc.governance.GetComments(ctx, id)
	if err != nil {
		return svc.writeError(c, err)
	}
	return c.JSON(http.StatusOK, threads)
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/middleware"
	"github.com/iliyamo/canteen-voting/internal/model"
	"github.com/iliyamo/canteen-voting/internal/policy"
	"github.com/iliyamo/canteen-voting/internal/service"
)

// VoteHandler exposes the vote service over HTTP.  Routes are guarded by
// JWTAuth and Require; handlers still check the identity so they can never
// run for an anonymous caller.
type VoteHandler struct {
	Votes   *service.VoteService
	Timeout time.Duration
	Log     *logrus.Entry
}

func NewVoteHandler(votes *service.VoteService, timeout time.Duration, log *logrus.Entry) *VoteHandler {
	return &VoteHandler{Votes: votes, Timeout: timeout, Log: log}
}

// castReq accepts the vendor under either name.
type castReq struct {
	VendorID string `json:"vendorId"`
	TargetID string `json:"targetId"`
}

func (r castReq) target() string {
	if s := strings.TrimSpace(r.VendorID); s != "" {
		return s
	}
	return strings.TrimSpace(r.TargetID)
}

// Cast handles POST /api/vote/cast.
func (h *VoteHandler) Cast(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	if err := policy.Authorize(id, policy.CastVote); err != nil {
		return respondError(c, h.Log, err)
	}
	var req castReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	vote, err := h.Votes.CastVote(ctx, id.UserID, req.target())
	if err != nil {
		return respondError(c, h.Log.WithField("user_id", id.UserID), err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Vote cast successfully",
		"vote": echo.Map{
			"id":           vote.ID,
			"vendorId":     vote.VendorID,
			"votingPeriod": vote.Period,
			"votedAt":      vote.CreatedAt,
		},
	})
}

// Results handles GET /api/vote/results[?period=YYYY-MM].
func (h *VoteHandler) Results(c echo.Context) error {
	if err := policy.Authorize(middleware.IdentityFrom(c), policy.ViewResults); err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	res, err := h.Votes.GetResults(ctx, model.Period(strings.TrimSpace(c.QueryParam("period"))))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"period":     res.Period,
		"totalVotes": res.TotalVotes,
		"results":    res.Results,
	})
}

// Status handles GET /api/vote/status.
func (h *VoteHandler) Status(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	if err := policy.Authorize(id, policy.VoteStatus); err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	st, err := h.Votes.CheckVoteStatus(ctx, id.UserID)
	if err != nil {
		return respondError(c, h.Log.WithField("user_id", id.UserID), err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"hasVoted": st.HasVoted,
		"vote":     st.Vote,
	})
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/services"
	"bandmate-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InviteSvc is wired in main before the router starts serving.
var InviteSvc *services.InviteService

// POST /api/bands/:id/invites
func IssueInvite(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	var req models.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	inv, err := InviteSvc.Issue(bandID, userID, req.Email, req.Role)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrEmailRequired), errors.Is(err, services.ErrInvalidRole):
		utils.BadRequest(c, err.Error())
		return
	case errors.Is(err, services.ErrNotBandAdmin):
		utils.Forbidden(c, err.Error())
		return
	case errors.Is(err, services.ErrNotificationFailed):
		// The invitation row exists; re-issuing reuses the token.
		utils.ErrorResponse(c, http.StatusBadGateway, err.Error())
		return
	default:
		utils.InternalError(c, "Failed to create invitation")
		return
	}

	database.DB.Create(&models.Activity{
		BandID:      bandID,
		UserID:      userID,
		Type:        "invite_sent",
		ReferenceID: inv.ID,
		Description: fmt.Sprintf("Invited %s as %s", inv.Email, inv.Role),
	})

	utils.SuccessResponse(c, http.StatusCreated, "Invitation sent", models.InviteResponse{
		Token:     inv.Token,
		AcceptURL: InviteSvc.AcceptURL(inv.Token),
		Role:      inv.Role,
		ExpiresAt: inv.ExpiresAt,
	})
}

// GET /invites/:token — public preview for the acceptance page
func GetInvite(c *gin.Context) {
	preview, err := InviteSvc.Get(c.Param("token"))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMalformedToken):
		utils.BadRequest(c, err.Error())
		return
	case errors.Is(err, services.ErrInviteNotFound):
		utils.NotFound(c, err.Error())
		return
	default:
		utils.InternalError(c, "Failed to load invitation")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", preview)
}

// POST /invites/:token/accept
func AcceptInvite(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	email := utils.GetCurrentUserEmail(c)

	member, err := InviteSvc.Accept(c.Param("token"), userID, email)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMalformedToken):
		utils.BadRequest(c, err.Error())
		return
	case errors.Is(err, services.ErrNotAuthenticated):
		utils.Unauthorized(c, err.Error())
		return
	case errors.Is(err, services.ErrInviteNotFound):
		utils.NotFound(c, err.Error())
		return
	case errors.Is(err, services.ErrEmailMismatch):
		utils.Forbidden(c, err.Error())
		return
	case errors.Is(err, services.ErrInviteExpired), errors.Is(err, services.ErrInviteNotPending):
		utils.BadRequest(c, err.Error())
		return
	default:
		utils.InternalError(c, "Failed to accept invitation")
		return
	}

	var user models.User
	database.DB.First(&user, "id = ?", userID)
	var band models.Band
	database.DB.First(&band, "id = ?", member.BandID)

	database.DB.Create(&models.Activity{
		BandID:      member.BandID,
		UserID:      userID,
		Type:        "member_joined",
		Description: fmt.Sprintf("%s joined %s", user.Name, band.Name),
	})

	go services.GetNotificationService().NotifyMemberJoined(
		band.ID.String(), band.Name, user.Name, memberFCMTokens(band.ID, userID))

	utils.SuccessResponse(c, http.StatusOK, "Invitation accepted", models.AcceptResponse{
		BandID: member.BandID,
		Role:   member.Role,
	})
}

// GET /api/bands/:id/invites
func ListInvites(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	invites, err := InviteSvc.ListByBand(bandID, userID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotBandAdmin):
		utils.Forbidden(c, "You are not a member of this band")
		return
	default:
		utils.InternalError(c, "Failed to list invitations")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", invites)
}

// DELETE /api/bands/:id/invites/:inviteId
func RevokeInvite(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}
	inviteID, err := uuid.Parse(c.Param("inviteId"))
	if err != nil {
		utils.BadRequest(c, "Invalid invitation ID")
		return
	}

	err = InviteSvc.Revoke(bandID, userID, inviteID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotBandAdmin):
		utils.Forbidden(c, err.Error())
		return
	case errors.Is(err, services.ErrInviteNotFound):
		utils.NotFound(c, err.Error())
		return
	case errors.Is(err, services.ErrInviteNotPending):
		utils.BadRequest(c, err.Error())
		return
	default:
		utils.InternalError(c, "Failed to revoke invitation")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Invitation revoked", nil)
}

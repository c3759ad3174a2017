package handlers

import (
	"fmt"
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// POST /api/bands
func CreateBand(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var req models.CreateBandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	band := models.Band{
		Name:      req.Name,
		Genre:     req.Genre,
		CreatedBy: userID,
	}

	if err := database.DB.Create(&band).Error; err != nil {
		utils.InternalError(c, "Failed to create band")
		return
	}

	// Creator becomes the first admin
	member := models.BandMember{
		BandID: band.ID,
		UserID: userID,
		Role:   models.RoleAdmin,
	}
	database.DB.Create(&member)

	var creator models.User
	database.DB.First(&creator, "id = ?", userID)
	database.DB.Create(&models.Activity{
		BandID:      band.ID,
		UserID:      userID,
		Type:        "band_created",
		ReferenceID: band.ID,
		Description: fmt.Sprintf("%s created band \"%s\"", creator.Name, band.Name),
	})

	utils.SuccessResponse(c, http.StatusCreated, "Band created", buildBandResponse(band.ID))
}

// GET /api/bands
func GetBands(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var memberships []models.BandMember
	database.DB.Where("user_id = ?", userID).Find(&memberships)

	var bandIDs []uuid.UUID
	for _, m := range memberships {
		bandIDs = append(bandIDs, m.BandID)
	}

	var bands []models.Band
	if len(bandIDs) > 0 {
		database.DB.Where("id IN ?", bandIDs).Order("created_at DESC").Find(&bands)
	}

	var responses []models.BandResponse
	for _, b := range bands {
		responses = append(responses, buildBandResponse(b.ID))
	}

	utils.SuccessResponse(c, http.StatusOK, "", responses)
}

// GET /api/bands/:id
func GetBand(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	if !isMember(bandID, userID) {
		utils.Forbidden(c, "You are not a member of this band")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", buildBandResponse(bandID))
}

// PUT /api/bands/:id
func UpdateBand(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	if !isAdmin(bandID, userID) {
		utils.Forbidden(c, "Only band admins can update the band")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Genre    string `json:"genre"`
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Genre != "" {
		updates["genre"] = req.Genre
	}
	if req.ImageURL != "" {
		updates["image_url"] = req.ImageURL
	}

	database.DB.Model(&models.Band{}).Where("id = ?", bandID).Updates(updates)

	utils.SuccessResponse(c, http.StatusOK, "Band updated", buildBandResponse(bandID))
}

// DELETE /api/bands/:id/members/:uid
func RemoveMember(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	bandID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid band ID")
		return
	}

	memberUID, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		utils.BadRequest(c, "Invalid user ID")
		return
	}

	// Only admin or self can remove
	if !isAdmin(bandID, userID) && userID != memberUID {
		utils.Forbidden(c, "Only admins can remove other members")
		return
	}

	database.DB.Where("band_id = ? AND user_id = ?", bandID, memberUID).Delete(&models.BandMember{})

	var removedUser models.User
	database.DB.First(&removedUser, "id = ?", memberUID)
	var band models.Band
	database.DB.First(&band, "id = ?", bandID)

	database.DB.Create(&models.Activity{
		BandID:      bandID,
		UserID:      userID,
		Type:        "member_left",
		Description: fmt.Sprintf("%s left %s", removedUser.Name, band.Name),
	})

	utils.SuccessResponse(c, http.StatusOK, "Member removed", nil)
}

// Helper: check band membership
func isMember(bandID, userID uuid.UUID) bool {
	var count int64
	database.DB.Model(&models.BandMember{}).Where("band_id = ? AND user_id = ?", bandID, userID).Count(&count)
	return count > 0
}

// Helper: check band admin role
func isAdmin(bandID, userID uuid.UUID) bool {
	var member models.BandMember
	if err := database.DB.Where("band_id = ? AND user_id = ?", bandID, userID).First(&member).Error; err != nil {
		return false
	}
	return member.Role == models.RoleAdmin
}

// Helper: FCM tokens of all band members, minus one user
func memberFCMTokens(bandID, excludeUserID uuid.UUID) []string {
	var members []models.BandMember
	database.DB.Where("band_id = ?", bandID).Find(&members)

	var tokens []string
	for _, m := range members {
		if m.UserID == excludeUserID {
			continue
		}
		var user models.User
		if err := database.DB.First(&user, "id = ?", m.UserID).Error; err != nil {
			continue
		}
		if user.FCMToken != "" {
			tokens = append(tokens, user.FCMToken)
		}
	}
	return tokens
}

// Helper: build full band response with members
func buildBandResponse(bandID uuid.UUID) models.BandResponse {
	var band models.Band
	database.DB.First(&band, "id = ?", bandID)

	var members []models.BandMember
	database.DB.Where("band_id = ?", bandID).Find(&members)

	var memberResponses []models.BandMemberResponse
	for _, m := range members {
		var user models.User
		database.DB.First(&user, "id = ?", m.UserID)
		memberResponses = append(memberResponses, models.BandMemberResponse{
			UserID:     user.ID,
			Name:       user.Name,
			Email:      user.Email,
			AvatarURL:  user.AvatarURL,
			Instrument: user.Instrument,
			Role:       m.Role,
			JoinedAt:   m.JoinedAt,
		})
	}

	return models.BandResponse{
		ID:        band.ID,
		Name:      band.Name,
		Genre:     band.Genre,
		ImageURL:  band.ImageURL,
		CreatedBy: band.CreatedBy,
		Members:   memberResponses,
		CreatedAt: band.CreatedAt,
	}
}

package handlers

import (
	"net/http"

	"bandmate-backend/database"
	"bandmate-backend/models"
	"bandmate-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/activity — global activity feed for current user
func GetActivity(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var pagination utils.PaginationQuery
	c.ShouldBindQuery(&pagination)

	// Get all bands user is in
	var memberships []models.BandMember
	database.DB.Where("user_id = ?", userID).Find(&memberships)

	var bandIDs []uuid.UUID
	for _, m := range memberships {
		bandIDs = append(bandIDs, m.BandID)
	}

	var activities []models.Activity
	if len(bandIDs) > 0 {
		database.DB.Where("band_id IN ?", bandIDs).
			Preload("User").
			Order("created_at DESC").
			Offset(pagination.Offset()).
			Limit(pagination.Limit).
			Find(&activities)

		// Attach band names
		bandNames := make(map[uuid.UUID]string)
		var bands []models.Band
		database.DB.Where("id IN ?", bandIDs).Find(&bands)
		for _, b := range bands {
			bandNames[b.ID] = b.Name
		}
		for i := range activities {
			activities[i].BandName = bandNames[activities[i].BandID]
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "", activities)
}

// GET /api/bands/:id/activity — activity feed for a specific band
func GetBandActivity(c *gin.Context) {
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

	var pagination utils.PaginationQuery
	c.ShouldBindQuery(&pagination)

	var activities []models.Activity
	database.DB.Where("band_id = ?", bandID).
		Preload("User").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&activities)

	utils.SuccessResponse(c, http.StatusOK, "", activities)
}

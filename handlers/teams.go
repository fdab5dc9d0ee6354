package handlers

import (
	"net/http"

	"teamdrive/models"
	"teamdrive/services"
	"teamdrive/utils"

	"github.com/gin-gonic/gin"
)

type CreateTeamRequest struct {
	Name          string `json:"name" binding:"required,max=200"`
	MemberQuota   int64  `json:"member_quota" binding:"gte=0"`
	ResourceQuota int64  `json:"resource_quota" binding:"gte=0"`
	StorageQuota  int64  `json:"storage_quota" binding:"gte=0"`
}

type SetMemberMaskRequest struct {
	Mask *int64 `json:"mask" binding:"required"`
}

func ListTeams(c *gin.Context) {
	teams, err := getServices().Teams.ListTeams(c.Request.Context(), c.GetUint("user_id"))
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, teams)
}

func CreateTeam(c *gin.Context) {
	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	team, err := getServices().Teams.CreateTeam(c.Request.Context(), c.GetUint("user_id"), services.CreateTeamInput{
		Name:          req.Name,
		MemberQuota:   req.MemberQuota,
		ResourceQuota: req.ResourceQuota,
		StorageQuota:  req.StorageQuota,
	})
	if respondServiceError(c, err) {
		return
	}
	utils.Respond(c, http.StatusCreated, team)
}

func TeamUsage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	usage, err := getServices().Teams.Usage(c.Request.Context(), id, c.GetUint("user_id"))
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, usage)
}

func SetMemberMask(c *gin.Context) {
	teamID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req SetMemberMaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if *req.Mask < 0 || *req.Mask > int64(models.TeamManageUsers) {
		utils.Error(c, http.StatusBadRequest, "Invalid team mask")
		return
	}
	err := getServices().Teams.SetMemberMask(c.Request.Context(), teamID, c.GetUint("user_id"), targetID, models.TeamMask(*req.Mask))
	if respondServiceError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

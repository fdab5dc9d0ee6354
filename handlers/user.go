package handlers

import (
	"teamdrive/utils"

	"github.com/gin-gonic/gin"
)

func GetProfile(c *gin.Context) {
	profile, err := getServices().Users.Profile(c.Request.Context(), c.GetUint("user_id"))
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, profile)
}

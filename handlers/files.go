package handlers

import (
	"net/http"
	"strconv"

	"teamdrive/services"
	"teamdrive/utils"

	"github.com/gin-gonic/gin"
)

func ListResources(c *gin.Context) {
	cursor, ok := cursorQuery(c)
	if !ok {
		return
	}
	page, err := getServices().Resources.List(c.Request.Context(), c.GetUint("user_id"), cursor)
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, page)
}

func RetrieveResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cursor, ok := cursorQuery(c)
	if !ok {
		return
	}
	view, err := getServices().Resources.Retrieve(c.Request.Context(), id, c.GetUint("user_id"), cursor)
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, view)
}

// UpdateResource creates a folder, starts an upload, or copies, moves or
// replaces from another resource, depending on the body.
func UpdateResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	res, err := getServices().Resources.Update(c.Request.Context(), id, c.GetUint("user_id"), req)
	if respondServiceError(c, err) {
		return
	}
	utils.Respond(c, res.Status, res.Body)
}

func CommitUpload(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	params, ok := commitParams(c)
	if !ok {
		return
	}
	var req services.CommitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	detail, err := getServices().Resources.Commit(c.Request.Context(), id, c.GetUint("user_id"), params, req)
	if respondServiceError(c, err) {
		return
	}
	utils.Respond(c, http.StatusCreated, detail)
}

// commitParams reads the signed query of a commit URL. Values that do not
// parse cannot carry a valid signature.
func commitParams(c *gin.Context) (services.CommitParams, bool) {
	folder, errFolder := strconv.ParseUint(c.Query("folder"), 10, 64)
	size, errSize := strconv.ParseInt(c.Query("size"), 10, 64)
	params := services.CommitParams{
		SessionID: c.Query("session"),
		FolderID:  uint(folder),
		Name:      c.Query("name"),
		Size:      size,
		Signature: c.Query("signature"),
	}
	if errFolder != nil || errSize != nil || params.SessionID == "" || params.Signature == "" {
		utils.ErrorWithKind(c, http.StatusUnauthorized, string(services.KindInvalidSignature), "", "Invalid upload signature", nil)
		return params, false
	}
	return params, true
}

func DestroyResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := getServices().Resources.Destroy(c.Request.Context(), id, c.GetUint("user_id"))
	if respondServiceError(c, err) {
		return
	}
	utils.Detail(c, http.StatusAccepted, "Resource deleted")
}

func GetMembers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := getServices().Resources.Members(c.Request.Context(), id, c.GetUint("user_id"))
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, view)
}

func UpdateMembers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req map[string]int64
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid resource members")
		return
	}
	view, err := getServices().Resources.UpdateMembers(c.Request.Context(), id, c.GetUint("user_id"), req)
	if respondServiceError(c, err) {
		return
	}
	utils.Success(c, view)
}

package api

import (
	"net/http"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

type ChangeRoleRequest struct {
	Role domain.Role `json:"role" binding:"required"`
}

// ListUsers godoc
// @Summary List every user, newest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} gin.H "{users}"
// @Failure 403 {object} gin.H "Admin role required"
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	users, err := h.adminService.ListUsers(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": MapUsersToResponse(users)})
}

// ChangeRole godoc
// @Summary Change a user's role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param role body ChangeRoleRequest true "New role"
// @Success 200 {object} gin.H "{user}"
// @Failure 400 {object} gin.H "Invalid user id or role"
// @Failure 404 {object} gin.H "User not found"
// @Failure 409 {object} gin.H "Cannot remove own admin role"
// @Router /admin/users/{id}/role [patch]
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	userID, ok := parseObjectIDParam(c, "id", "invalid user id")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	user, err := h.adminService.ChangeRole(c.Request.Context(), principal, userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": MapUserToResponse(user)})
}

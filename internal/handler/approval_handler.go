package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/service"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

// ApprovalHandler exposes the teacher and HOD decision endpoints.
type ApprovalHandler struct {
	outpasses *service.OutpassService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(outpasses *service.OutpassService) *ApprovalHandler {
	return &ApprovalHandler{outpasses: outpasses}
}

// TeacherAssigned godoc
// @Summary List outpasses assigned to the teacher
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/outpass/assigned [get]
func (h *ApprovalHandler) TeacherAssigned(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	views, err := h.outpasses.ListForTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views)
}

// TeacherApprove godoc
// @Summary Teacher forwards a pending outpass
// @Tags Approvals
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/outpass/approve/{id} [post]
func (h *ApprovalHandler) TeacherApprove(c *gin.Context) {
	h.teacherDecide(c, service.DecisionApprove)
}

// TeacherReject godoc
// @Summary Teacher rejects a pending outpass
// @Tags Approvals
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/outpass/reject/{id} [post]
func (h *ApprovalHandler) TeacherReject(c *gin.Context) {
	h.teacherDecide(c, service.DecisionReject)
}

func (h *ApprovalHandler) teacherDecide(c *gin.Context, decision service.Decision) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.outpasses.TeacherDecide(c.Request.Context(), claims.UserID, c.Param("id"), decision)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail)
}

// HodAssigned godoc
// @Summary List outpasses assigned to the HOD
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hod/outpass/assigned [get]
func (h *ApprovalHandler) HodAssigned(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	views, err := h.outpasses.ListForHod(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views)
}

// HodApprove godoc
// @Summary HOD grants final approval
// @Description Approve a moved outpass, issuing the OTP and QR token
// @Tags Approvals
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /hod/outpass/approve/{id} [post]
func (h *ApprovalHandler) HodApprove(c *gin.Context) {
	h.hodDecide(c, service.DecisionApprove)
}

// HodReject godoc
// @Summary HOD rejects a moved outpass
// @Tags Approvals
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /hod/outpass/reject/{id} [post]
func (h *ApprovalHandler) HodReject(c *gin.Context) {
	h.hodDecide(c, service.DecisionReject)
}

func (h *ApprovalHandler) hodDecide(c *gin.Context, decision service.Decision) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.outpasses.HodDecide(c.Request.Context(), claims.UserID, c.Param("id"), decision)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// RegenerateOTP godoc
// @Summary Reissue the OTP for an approved outpass
// @Tags Approvals
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /hod/outpass/{id}/regenerate-otp [post]
func (h *ApprovalHandler) RegenerateOTP(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.outpasses.RegenerateOTP(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

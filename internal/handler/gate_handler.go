package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/service"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

// GateHandler exposes the security-desk endpoints.
type GateHandler struct {
	outpasses *service.OutpassService
	exports   *service.OutpassExportService
}

// NewGateHandler constructs the handler.
func NewGateHandler(outpasses *service.OutpassService, exports *service.OutpassExportService) *GateHandler {
	return &GateHandler{outpasses: outpasses, exports: exports}
}

// Verify godoc
// @Summary Verify an OTP at the gate
// @Description Validate the code and mark the outpass as exited
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.VerifyOTPRequest true "OTP payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /security/outpass/verify [post]
func (h *GateHandler) Verify(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid OTP payload"))
		return
	}

	result, err := h.outpasses.VerifyOTP(c.Request.Context(), claims.UserID, req.OTP)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// Expired godoc
// @Summary List expired outpasses
// @Tags Gate
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /security/outpass/expired [get]
func (h *GateHandler) Expired(c *gin.Context) {
	views, err := h.outpasses.ListExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views)
}

// ExpiredCSV godoc
// @Summary Export expired outpasses as CSV
// @Tags Gate
// @Produce text/csv
// @Success 200 {file} binary
// @Router /security/outpass/expired.csv [get]
func (h *GateHandler) ExpiredCSV(c *gin.Context) {
	data, err := h.exports.ExpiredCSV(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="expired-outpasses.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

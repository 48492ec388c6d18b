package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/service"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

// OutpassHandler exposes the student-facing outpass endpoints.
type OutpassHandler struct {
	outpasses *service.OutpassService
	exports   *service.OutpassExportService
}

// NewOutpassHandler constructs the handler.
func NewOutpassHandler(outpasses *service.OutpassService, exports *service.OutpassExportService) *OutpassHandler {
	return &OutpassHandler{outpasses: outpasses, exports: exports}
}

// Create godoc
// @Summary Request an outpass
// @Description File a new outpass request for today
// @Tags Outpass
// @Accept json
// @Produce json
// @Param payload body dto.CreateOutpassRequest true "Outpass payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /student/outpass/request [post]
func (h *OutpassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateOutpassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid outpass payload"))
		return
	}

	detail, err := h.outpasses.CreateRequest(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// Mine godoc
// @Summary List own outpasses
// @Tags Outpass
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/outpass/mine [get]
func (h *OutpassHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	views, err := h.outpasses.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views)
}

// Get godoc
// @Summary Fetch one of the student's outpasses
// @Tags Outpass
// @Produce json
// @Param id path string true "Outpass ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /student/outpass/{id} [get]
func (h *OutpassHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.outpasses.GetForStudent(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail)
}

// Slip godoc
// @Summary Download the printable pass slip
// @Description Render the approved outpass as a PDF slip with the QR token
// @Tags Outpass
// @Produce application/pdf
// @Param id path string true "Outpass ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /student/outpass/{id}/slip [get]
func (h *OutpassHandler) Slip(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, err := h.exports.PassSlipPDF(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="outpass-slip.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

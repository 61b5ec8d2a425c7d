package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/middleware"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/validation"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/refunds"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/storage"
)

// RefundsHandler serves the contractor side of the refund workflow.
type RefundsHandler struct {
	Svc *refunds.Service
}

func NewRefundsHandler(svc *refunds.Service) *RefundsHandler {
	return &RefundsHandler{Svc: svc}
}

type createRefundBody struct {
	LeadID         string `json:"leadId" binding:"required"`
	LeadType       string `json:"leadType" binding:"required,oneof=system_lead hes_request"`
	Reason         string `json:"reason" binding:"required"`
	ReasonCategory string `json:"reasonCategory" binding:"required"`
	Notes          string `json:"notes" binding:"max=4000"`
}

// Create serves POST /refund-requests.
func (h *RefundsHandler) Create(c *gin.Context) {
	var body createRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(validation.BindError(err, &body))
		return
	}

	rr, err := h.Svc.RequestRefund(c.Request.Context(), middleware.CurrentAuth(c), refunds.RequestRefundInput{
		LeadID:         body.LeadID,
		LeadType:       leads.Type(body.LeadType),
		Reason:         body.Reason,
		ReasonCategory: refunds.ReasonCategory(body.ReasonCategory),
		Notes:          body.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rr)
}

// List serves GET /refund-requests: the caller's own requests.
func (h *RefundsHandler) List(c *gin.Context) {
	out, err := h.Svc.ListRefundRequests(c.Request.Context(), middleware.CurrentAuth(c), refunds.Filters{
		Status: refunds.Status(c.Query("status")),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

type respondBody struct {
	Response string `json:"response" binding:"required,max=4000"`
}

// Respond serves POST /refund-requests/:id/respond.
func (h *RefundsHandler) Respond(c *gin.Context) {
	var body respondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(validation.BindError(err, &body))
		return
	}
	rr, err := h.Svc.RespondToInfoRequest(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"), body.Response)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

// UploadEvidence serves POST /refund-requests/:id/evidence (multipart field "file").
func (h *RefundsHandler) UploadEvidence(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxEvidenceBytes+(1<<20))

	fh, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperr.InvalidErr("Attach a file in the \"file\" field.", map[string]string{"file": "required"}))
		return
	}
	f, err := fh.Open()
	if err != nil {
		_ = c.Error(apperr.Wrap(err))
		return
	}
	defer f.Close()

	rr, err := h.Svc.AttachEvidence(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"), refunds.EvidenceFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

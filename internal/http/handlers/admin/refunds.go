package admin

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/middleware"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/validation"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/refunds"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
)

type RefundsHandler struct {
	Svc *refunds.Service
}

func NewRefundsHandler(svc *refunds.Service) *RefundsHandler {
	return &RefundsHandler{Svc: svc}
}

// List serves GET /admin/refund-requests.
func (h *RefundsHandler) List(c *gin.Context) {
	f, err := parseFilters(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out, err := h.Svc.ListRefundRequests(c.Request.Context(), middleware.CurrentAuth(c), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// Detail serves GET /admin/refund-requests/:id.
func (h *RefundsHandler) Detail(c *gin.Context) {
	d, err := h.Svc.GetRefundRequestWithDetails(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type approveBody struct {
	AdminNotes string `json:"adminNotes" binding:"max=4000"`
}

// Approve serves POST /admin/refund-requests/:id/approve. The body is optional.
func (h *RefundsHandler) Approve(c *gin.Context) {
	var body approveBody
	// io.EOF: no body, including chunked requests with nothing in them
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(validation.BindError(err, &body))
		return
	}
	rr, err := h.Svc.ApproveRefund(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"), body.AdminNotes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

type denyBody struct {
	Reason string `json:"reason" binding:"required,max=4000"`
}

// Deny serves POST /admin/refund-requests/:id/deny.
func (h *RefundsHandler) Deny(c *gin.Context) {
	var body denyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(validation.BindError(err, &body))
		return
	}
	rr, err := h.Svc.DenyRefund(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"), body.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

type requestInfoBody struct {
	Question string `json:"question" binding:"required,max=4000"`
}

// RequestInfo serves POST /admin/refund-requests/:id/request-info.
func (h *RefundsHandler) RequestInfo(c *gin.Context) {
	var body requestInfoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(validation.BindError(err, &body))
		return
	}
	rr, err := h.Svc.RequestMoreInfo(c.Request.Context(), middleware.CurrentAuth(c), c.Param("id"), body.Question)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

func parseFilters(c *gin.Context) (refunds.Filters, error) {
	f := refunds.Filters{
		Status:       refunds.Status(strings.TrimSpace(c.Query("status"))),
		ContractorID: strings.TrimSpace(c.Query("contractor_id")),
	}
	fields := map[string]string{}
	if v := strings.TrimSpace(c.Query("date_from")); v != "" {
		t, _, err := parseDate(v)
		if err != nil {
			fields["date_from"] = "use YYYY-MM-DD or RFC3339"
		} else {
			f.DateFrom = &t
		}
	}
	if v := strings.TrimSpace(c.Query("date_to")); v != "" {
		t, dateOnly, err := parseDate(v)
		if err != nil {
			fields["date_to"] = "use YYYY-MM-DD or RFC3339"
		} else {
			if dateOnly {
				// whole day inclusive
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			f.DateTo = &t
		}
	}
	if len(fields) > 0 {
		return refunds.Filters{}, apperr.InvalidErr("Invalid date filter.", fields)
	}
	return f, nil
}

func parseDate(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	return t.UTC(), false, err
}

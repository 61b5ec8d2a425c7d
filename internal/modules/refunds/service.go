package refunds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/auth"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/notify"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/users"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/storage"
)

const msgNotFound = "Refund request not found."

type Service struct {
	db       *gorm.DB
	store    *Store
	ledger   *payments.Ledger
	leads    *leads.Repo
	users    *users.Repo
	provider payments.Provider
	files    storage.Storage
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the refund workflow. files may be nil when evidence
// uploads are disabled; notifier may be nil.
func NewService(db *gorm.DB, provider payments.Provider, files storage.Storage, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		db:       db,
		store:    NewStore(db),
		ledger:   payments.NewLedger(db),
		leads:    leads.NewRepo(db),
		users:    users.NewRepo(db),
		provider: provider,
		files:    files,
		notifier: notifier,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

type RequestRefundInput struct {
	LeadID         string
	LeadType       leads.Type
	Reason         string
	ReasonCategory ReasonCategory
	Notes          string
}

// RequestRefund files a refund claim for a lead the caller paid for.
func (s *Service) RequestRefund(ctx context.Context, ac auth.Context, in RequestRefundInput) (RefundRequest, error) {
	if err := requirePurchaser(ac); err != nil {
		return RefundRequest{}, err
	}

	in.Reason = strings.TrimSpace(in.Reason)
	in.Notes = strings.TrimSpace(in.Notes)
	fields := map[string]string{}
	if in.LeadID == "" {
		fields["leadId"] = "required"
	}
	if !in.LeadType.Valid() {
		fields["leadType"] = "must be system_lead or hes_request"
	}
	if in.Reason == "" {
		fields["reason"] = "required"
	}
	if in.ReasonCategory == "" {
		fields["reasonCategory"] = "required"
	} else if !in.ReasonCategory.Valid() {
		fields["reasonCategory"] = "unknown category"
	}
	if len(fields) > 0 {
		return RefundRequest{}, apperr.InvalidErr("Please correct the highlighted fields.", fields)
	}

	pay, err := s.ledger.FindCompletedForLead(ctx, ac.UserID, in.LeadType, in.LeadID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefundRequest{}, apperr.InvalidErr("No completed payment found for this lead.", nil)
	}
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}

	// advisory only, computed before the write so the tx holds no extra reads
	stats, err := s.contractorStats(ctx, ac.UserID)
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}

	now := s.now()
	rr := RefundRequest{
		PaymentID:      pay.ID,
		ContractorID:   ac.UserID,
		LeadID:         in.LeadID,
		LeadType:       in.LeadType,
		Reason:         in.Reason,
		ReasonCategory: in.ReasonCategory,
		Notes:          optional(in.Notes),
		RequestedDate:  now,
		Status:         StatusPending,
		RiskScore:      RiskScore(stats),
		CreatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serializes concurrent requests for the same payment
		if _, err := s.ledger.WithTx(tx).Lock(ctx, pay.ID); err != nil {
			return err
		}
		st := s.store.WithTx(tx)
		_, open, err := st.FindOpenForPayment(ctx, pay.ID)
		if err != nil {
			return err
		}
		if open {
			return apperr.InvalidErr("A refund request for this lead is already under review.", nil)
		}
		if err := st.Create(ctx, &rr); err != nil {
			return err
		}
		return st.AppendAudit(ctx, AuditEntry{
			RefundRequestID: rr.ID,
			ActorID:         ac.UserID,
			Action:          ActionRequested,
			ToStatus:        StatusPending,
			Note:            optional(string(in.ReasonCategory)),
			CreatedAt:       now,
		})
	})
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}

	s.logger.InfoContext(ctx, "refund requested", "refund_request_id", rr.ID, "payment_id", pay.ID, "contractor_id", ac.UserID, "risk_score", rr.RiskScore)
	return rr, nil
}

// ApproveRefund issues the processor refund and closes the request in three
// phases: claim, processor call with no transaction open, finalize under the
// claim. Other decisions are rejected while the claim is live.
func (s *Service) ApproveRefund(ctx context.Context, ac auth.Context, id, adminNotes string) (RefundRequest, error) {
	if err := requireAdmin(ac); err != nil {
		return RefundRequest{}, err
	}
	rr, err := s.loadOpen(ctx, id)
	if err != nil {
		return RefundRequest{}, err
	}

	pay, err := s.ledger.Get(ctx, rr.PaymentID)
	if err != nil {
		return RefundRequest{}, apperr.Wrap(fmt.Errorf("load payment %s: %w", rr.PaymentID, err))
	}
	if pay.Status != payments.StatusCompleted && pay.Status != payments.StatusRefunded {
		return RefundRequest{}, apperr.ConflictErr("The linked payment cannot be refunded.")
	}

	// phase 1: claim
	n, err := s.store.ClaimApproval(ctx, rr.ID, ac.UserID, s.now())
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}
	if n == 0 {
		return RefundRequest{}, s.missConflict(ctx, s.store, rr.ID)
	}

	// phase 2: processor
	var externalRef *string
	if pay.Status == payments.StatusCompleted {
		res, err := s.provider.RefundPayment(ctx, payments.RefundInput{
			PaymentID:       pay.ID,
			ChargeID:        pay.ChargeRef(),
			PaymentIntentID: pay.ExternalPaymentIntentID,
			Amount:          pay.Amount,
			Currency:        pay.Currency,
			IdempotencyKey:  "refund_request:" + rr.ID,
			Reason:          string(rr.ReasonCategory),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "processor refund failed", "refund_request_id", rr.ID, "payment_id", pay.ID, "err", err)
			if rerr := s.store.ReleaseApproval(ctx, rr.ID, ac.UserID); rerr != nil {
				s.logger.ErrorContext(ctx, "failed to release approval claim", "refund_request_id", rr.ID, "err", rerr)
			}
			return RefundRequest{}, apperr.ExternalErr("The payment processor rejected the refund.", err)
		}
		externalRef = optional(res.ProviderRef)
	} else {
		// refunded on the processor side already (charge.refunded webhook)
		s.logger.InfoContext(ctx, "payment already refunded, approving without processor call", "refund_request_id", rr.ID, "payment_id", pay.ID)
	}

	// phase 3: finalize
	now := s.now()
	notes := optional(strings.TrimSpace(adminNotes))
	updates := map[string]any{
		"status":        StatusApproved,
		"reviewed_by":   ac.UserID,
		"reviewed_date": now,
		"admin_notes":   notes,
		"refund_date":   now,
		"updated_at":    now,
	}
	if externalRef != nil {
		updates["external_refund_id"] = *externalRef
	}

	var orphaned *RefundRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		n, err := st.FinishApproval(ctx, rr.ID, ac.UserID, updates)
		if err != nil {
			return err
		}
		entry := AuditEntry{
			RefundRequestID: rr.ID,
			ActorID:         ac.UserID,
			Action:          ActionApproved,
			FromStatus:      &rr.Status,
			ToStatus:        StatusApproved,
			Note:            notes,
			CreatedAt:       now,
		}
		if n == 0 {
			if externalRef == nil {
				return apperr.ConflictErr("Refund request was already decided.")
			}
			// the claim was lost (stale takeover or a direct write) after the
			// money moved: keep the ledger truthful and leave a trail
			cur, err := st.Get(ctx, rr.ID)
			if err != nil {
				return err
			}
			orphaned = &cur
			entry.Action = ActionRefundIssued
			entry.FromStatus = &cur.Status
			entry.ToStatus = cur.Status
			entry.Note = optional("processor refund " + *externalRef + " issued before the request changed")
		}
		// zero rows: a charge.refunded webhook got there first
		if _, err := s.ledger.WithTx(tx).MarkRefunded(ctx, pay.ID, now); err != nil {
			return err
		}
		return st.AppendAudit(ctx, entry)
	})
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}
	if orphaned != nil {
		s.logger.ErrorContext(ctx, "refund issued but approval could not be recorded",
			"refund_request_id", rr.ID, "payment_id", pay.ID, "external_refund_id", *externalRef,
			"request_status", orphaned.Status, "admin_id", ac.UserID)
		return RefundRequest{}, apperr.ConflictErr("Refund was issued but the request changed; see the audit trail.")
	}

	s.logger.InfoContext(ctx, "refund approved", "refund_request_id", rr.ID, "payment_id", pay.ID, "admin_id", ac.UserID)
	s.send(ctx, notify.Notification{
		Kind:    notify.KindRefundApproved,
		UserID:  rr.ContractorID,
		Subject: "Your refund request was approved",
		Body:    fmt.Sprintf("Your refund of %s %s has been issued.", pay.Amount.StringFixed(2), strings.ToUpper(pay.Currency)),
		Data:    map[string]string{"refund_request_id": rr.ID},
	})
	return s.reload(ctx, rr.ID)
}

// DenyRefund closes the request without a processor call.
func (s *Service) DenyRefund(ctx context.Context, ac auth.Context, id, reason string) (RefundRequest, error) {
	if err := requireAdmin(ac); err != nil {
		return RefundRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return RefundRequest{}, apperr.InvalidErr("A reason is required to deny a refund.", map[string]string{"reason": "required"})
	}

	rr, err := s.transition(ctx, ac, id, openStatuses, StatusDenied, ActionDenied, reason, func(now time.Time) map[string]any {
		return map[string]any{
			"reviewed_by":   ac.UserID,
			"reviewed_date": now,
			"admin_notes":   reason,
		}
	})
	if err != nil {
		return RefundRequest{}, err
	}

	s.send(ctx, notify.Notification{
		Kind:    notify.KindRefundDenied,
		UserID:  rr.ContractorID,
		Subject: "Your refund request was denied",
		Body:    "Reason: " + reason,
		Data:    map[string]string{"refund_request_id": rr.ID},
	})
	return rr, nil
}

// RequestMoreInfo asks the contractor a question. Asking again replaces the
// previous question.
func (s *Service) RequestMoreInfo(ctx context.Context, ac auth.Context, id, question string) (RefundRequest, error) {
	if err := requireAdmin(ac); err != nil {
		return RefundRequest{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return RefundRequest{}, apperr.InvalidErr("A question is required.", map[string]string{"question": "required"})
	}

	rr, err := s.transition(ctx, ac, id, openStatuses, StatusMoreInfoRequested, ActionInfoRequested, question, func(now time.Time) map[string]any {
		return map[string]any{
			"info_requested":      question,
			"info_requested_date": now,
			"reviewed_by":         ac.UserID,
		}
	})
	if err != nil {
		return RefundRequest{}, err
	}

	s.send(ctx, notify.Notification{
		Kind:    notify.KindRefundInfoRequested,
		UserID:  rr.ContractorID,
		Subject: "More information needed for your refund request",
		Body:    question,
		Data:    map[string]string{"refund_request_id": rr.ID},
	})
	return rr, nil
}

// RespondToInfoRequest records the contractor's answer and puts the request
// back in the review queue.
func (s *Service) RespondToInfoRequest(ctx context.Context, ac auth.Context, id, response string) (RefundRequest, error) {
	if err := requirePurchaser(ac); err != nil {
		return RefundRequest{}, err
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return RefundRequest{}, apperr.InvalidErr("A response is required.", map[string]string{"response": "required"})
	}
	if _, err := s.loadOwned(ctx, ac, id); err != nil {
		return RefundRequest{}, err
	}

	return s.transition(ctx, ac, id, []Status{StatusMoreInfoRequested}, StatusPending, ActionInfoProvided, response, func(now time.Time) map[string]any {
		return map[string]any{
			"info_response":      response,
			"info_response_date": now,
		}
	})
}

// EvidenceFile is an upload attached to a refund request.
type EvidenceFile struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// AttachEvidence stores a supporting file and links it to an open request.
func (s *Service) AttachEvidence(ctx context.Context, ac auth.Context, id string, f EvidenceFile) (RefundRequest, error) {
	if err := requirePurchaser(ac); err != nil {
		return RefundRequest{}, err
	}
	if s.files == nil {
		return RefundRequest{}, apperr.Wrap(errors.New("evidence storage not configured"))
	}
	if _, _, err := storage.EvidenceExt(f.Filename); err != nil {
		return RefundRequest{}, apperr.InvalidErr("Evidence must be a PDF, PNG, JPEG or WebP file.", map[string]string{"file": "unsupported type"})
	}
	if f.Size > storage.MaxEvidenceBytes {
		return RefundRequest{}, apperr.InvalidErr("Evidence file is too large.", map[string]string{"file": "too large"})
	}

	rr, err := s.loadOwned(ctx, ac, id)
	if err != nil {
		return RefundRequest{}, err
	}
	if rr.Status.Terminal() {
		return RefundRequest{}, apperr.ConflictErr("Refund request was already decided.")
	}

	put, err := s.files.Put(ctx, f.Body, storage.PutInput{Filename: f.Filename, Size: f.Size, Prefix: rr.ID})
	if err != nil {
		return RefundRequest{}, apperr.Wrap(fmt.Errorf("store evidence: %w", err))
	}

	out, err := s.transition(ctx, ac, id, openStatuses, "", ActionEvidence, put.URL, func(time.Time) map[string]any {
		return map[string]any{"evidence_url": put.URL}
	})
	if err != nil {
		if derr := s.files.Delete(ctx, put.Key); derr != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned evidence", "key", put.Key, "err", derr)
		}
		return RefundRequest{}, err
	}
	return out, nil
}

// ContractorInfo is the contractor identity shown to reviewers.
type ContractorInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	CompanyName string `json:"company_name,omitempty"`
}

type Details struct {
	RefundRequest
	Contractor *ContractorInfo       `json:"contractor,omitempty"`
	Lead       *leads.Summary        `json:"lead,omitempty"`
	Stats      ContractorRefundStats `json:"contractor_stats"`
	Audit      []AuditEntry          `json:"audit"`
}

// GetRefundRequestWithDetails loads a request with everything a reviewer needs.
// Missing contractor or lead rows leave the corresponding field nil.
func (s *Service) GetRefundRequestWithDetails(ctx context.Context, ac auth.Context, id string) (Details, error) {
	if err := requireAdmin(ac); err != nil {
		return Details{}, err
	}
	rr, err := s.load(ctx, id)
	if err != nil {
		return Details{}, err
	}

	d := Details{RefundRequest: rr}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.Get(gctx, rr.ContractorID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load contractor: %w", err)
		}
		info := ContractorInfo{ID: u.ID, Name: u.DisplayName(), Email: u.Email}
		if u.CompanyName != nil {
			info.CompanyName = *u.CompanyName
		}
		d.Contractor = &info
		return nil
	})
	g.Go(func() error {
		sum, err := s.leads.Summary(gctx, rr.LeadType, rr.LeadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load lead: %w", err)
		}
		d.Lead = &sum
		return nil
	})
	g.Go(func() error {
		st, err := s.contractorStats(gctx, rr.ContractorID)
		if err != nil {
			return fmt.Errorf("contractor stats: %w", err)
		}
		d.Stats = st
		return nil
	})
	g.Go(func() error {
		entries, err := s.store.Audit(gctx, rr.ID)
		if err != nil {
			return fmt.Errorf("audit trail: %w", err)
		}
		d.Audit = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		return Details{}, apperr.Wrap(err)
	}
	return d, nil
}

// ListRefundRequests returns requests newest first. Purchasers only ever see
// their own requests regardless of the contractor filter.
func (s *Service) ListRefundRequests(ctx context.Context, ac auth.Context, f Filters) ([]RefundRequest, error) {
	switch {
	case !ac.Authenticated():
		return nil, apperr.UnauthorizedErr("Please sign in.")
	case ac.IsAdmin():
	case ac.Purchaser():
		f.ContractorID = ac.UserID
	default:
		return nil, apperr.ForbiddenErr("You are not allowed to view refund requests.")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.InvalidErr("Unknown status filter.", map[string]string{"status": "unknown status"})
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return nil, apperr.InvalidErr("date_to is before date_from.", map[string]string{"date_to": "before date_from"})
	}

	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// transition moves an open request to `to` (or keeps its status when to is
// empty) with one conditional update plus an audit row in the same transaction.
func (s *Service) transition(ctx context.Context, ac auth.Context, id string, from []Status, to Status, action, note string, fields func(now time.Time) map[string]any) (RefundRequest, error) {
	rr, err := s.load(ctx, id)
	if err != nil {
		return RefundRequest{}, err
	}
	if !statusIn(rr.Status, from) {
		return RefundRequest{}, conflictFor(rr.Status)
	}
	now := s.now()
	if rr.ApprovalInFlight(now) {
		return RefundRequest{}, approvalInFlightErr()
	}

	updates := fields(now)
	updates["updated_at"] = now
	target := rr.Status
	if to != "" {
		updates["status"] = to
		target = to
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		n, err := st.UpdateStatus(ctx, rr.ID, []Status{rr.Status}, updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return s.missConflict(ctx, st, rr.ID)
		}
		return st.AppendAudit(ctx, AuditEntry{
			RefundRequestID: rr.ID,
			ActorID:         ac.UserID,
			Action:          action,
			FromStatus:      &rr.Status,
			ToStatus:        target,
			Note:            optional(note),
			CreatedAt:       now,
		})
	})
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}

	s.logger.InfoContext(ctx, "refund request updated", "refund_request_id", rr.ID, "action", action, "from", rr.Status, "to", target, "actor_id", ac.UserID)
	return s.reload(ctx, rr.ID)
}

func (s *Service) contractorStats(ctx context.Context, contractorID string) (ContractorRefundStats, error) {
	totals, err := s.ledger.PurchaseTotals(ctx, contractorID)
	if err != nil {
		return ContractorRefundStats{}, err
	}
	closed, err := s.leads.CountClosed(ctx, contractorID)
	if err != nil {
		return ContractorRefundStats{}, err
	}
	counts, err := s.store.CountByContractor(ctx, contractorID)
	if err != nil {
		return ContractorRefundStats{}, err
	}
	return newStats(totals.Count, closed, counts, totals.Average), nil
}

func (s *Service) load(ctx context.Context, id string) (RefundRequest, error) {
	if id == "" {
		return RefundRequest{}, apperr.NotFoundErr(msgNotFound)
	}
	rr, err := s.store.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefundRequest{}, apperr.NotFoundErr(msgNotFound)
	}
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}
	return rr, nil
}

func (s *Service) loadOpen(ctx context.Context, id string) (RefundRequest, error) {
	rr, err := s.load(ctx, id)
	if err != nil {
		return RefundRequest{}, err
	}
	if rr.Status.Terminal() {
		return RefundRequest{}, conflictFor(rr.Status)
	}
	return rr, nil
}

// loadOwned hides other contractors' requests behind NotFound.
func (s *Service) loadOwned(ctx context.Context, ac auth.Context, id string) (RefundRequest, error) {
	rr, err := s.load(ctx, id)
	if err != nil {
		return RefundRequest{}, err
	}
	if rr.ContractorID != ac.UserID {
		return RefundRequest{}, apperr.NotFoundErr(msgNotFound)
	}
	return rr, nil
}

func (s *Service) reload(ctx context.Context, id string) (RefundRequest, error) {
	rr, err := s.store.Get(ctx, id)
	if err != nil {
		return RefundRequest{}, apperr.Wrap(err)
	}
	return rr, nil
}

func (s *Service) send(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "notification failed", "kind", n.Kind, "user_id", n.UserID, "err", err)
	}
}

func requireAdmin(ac auth.Context) error {
	if !ac.Authenticated() {
		return apperr.UnauthorizedErr("Please sign in.")
	}
	if !ac.IsAdmin() {
		return apperr.ForbiddenErr("Admin access required.")
	}
	return nil
}

func requirePurchaser(ac auth.Context) error {
	if !ac.Authenticated() {
		return apperr.UnauthorizedErr("Please sign in.")
	}
	if !ac.Purchaser() {
		return apperr.ForbiddenErr("Only contractors and affiliates can request refunds.")
	}
	return nil
}

// missConflict explains why a conditional write on id matched nothing.
func (s *Service) missConflict(ctx context.Context, st *Store, id string) error {
	cur, err := st.Get(ctx, id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFoundErr(msgNotFound)
	case err != nil:
		return err
	case cur.Status.Terminal():
		return conflictFor(cur.Status)
	case cur.ApprovalInFlight(s.now()):
		return approvalInFlightErr()
	}
	return apperr.ConflictErr("Refund request changed while you were editing it.")
}

func approvalInFlightErr() error {
	return apperr.ConflictErr("Refund request is being approved.")
}

func conflictFor(st Status) error {
	if st.Terminal() {
		return apperr.ConflictErr(fmt.Sprintf("Refund request is already %s.", st))
	}
	return apperr.ConflictErr(fmt.Sprintf("Refund request is %s.", st))
}

func statusIn(st Status, set []Status) bool {
	for _, x := range set {
		if st == x {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

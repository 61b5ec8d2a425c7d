package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/notify"
)

// errUnprocessable marks an authentic event that can never be applied
// (e.g. checkout metadata missing). It is acknowledged, not retried.
var errUnprocessable = errors.New("unprocessable webhook event")

// ProviderEvent is the delivery log. The unique (provider, event_id) index
// drops exact redeliveries before any effect is applied.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"not null"`

	ReceivedAt   time.Time `gorm:"not null"`
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

type WebhookService struct {
	db       *gorm.DB
	ledger   *Ledger
	leads    *leads.Repo
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewWebhookService(db *gorm.DB, notifier notify.Notifier) *WebhookService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &WebhookService{
		db:       db,
		ledger:   NewLedger(db),
		leads:    leads.NewRepo(db),
		notifier: notifier,
		logger:   slog.Default(),
	}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handle applies one verified event. All effects run in one transaction; a
// returned error rolls everything back (delivery log row included) so the
// processor's redelivery starts clean. Notifications go out after commit.
func (s *WebhookService) Handle(ctx context.Context, providerName string, ev WebhookEvent, rawBody []byte) error {
	var outbox []notify.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var pe *ProviderEvent
		if ev.EventID != "" {
			pe = &ProviderEvent{
				ID:          uuid.NewString(),
				Provider:    providerName,
				EventID:     ev.EventID,
				EventType:   truncate(ev.RawType, 64),
				PayloadJSON: payloadJSON(rawBody),
				ReceivedAt:  now,
			}
			res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(pe)
			if res.Error != nil {
				s.logger.ErrorContext(ctx, "failed to persist provider event", "provider", providerName, "event_id", ev.EventID, "err", res.Error)
				return res.Error
			}
			if res.RowsAffected == 0 {
				s.logger.InfoContext(ctx, "webhook event deduplicated", "provider", providerName, "event_id", ev.EventID, "type", ev.RawType)
				return nil
			}
		}

		if !ev.Known() {
			s.logger.InfoContext(ctx, "webhook event ignored", "provider", providerName, "event_id", ev.EventID, "type", ev.RawType)
		}

		var applyErr error
		switch ev.Type {
		case EventPaymentSucceeded:
			outbox, applyErr = s.applyPaymentSucceeded(ctx, tx, ev, now)
		case EventPaymentFailed:
			outbox, applyErr = s.applyPaymentFailed(ctx, tx, ev)
		case EventChargeRefunded:
			applyErr = s.applyChargeRefunded(ctx, tx, ev, now)
		}

		upd := map[string]any{"processed_at": &now, "process_error": nil}
		if applyErr != nil {
			if !errors.Is(applyErr, errUnprocessable) {
				s.logger.ErrorContext(ctx, "webhook event apply failed", "provider", providerName, "event_id", ev.EventID, "type", ev.RawType, "err", applyErr)
				return applyErr
			}
			s.logger.WarnContext(ctx, "webhook event unprocessable", "provider", providerName, "event_id", ev.EventID, "type", ev.RawType, "err", applyErr)
			upd["process_error"] = truncate(applyErr.Error(), 250)
		}
		if pe == nil {
			return nil
		}
		return tx.WithContext(ctx).Model(&ProviderEvent{}).Where("id = ?", pe.ID).Updates(upd).Error
	})
	if err != nil {
		return err
	}

	for _, n := range outbox {
		if nerr := s.notifier.Notify(ctx, n); nerr != nil {
			s.logger.ErrorContext(ctx, "notification failed", "kind", n.Kind, "user_id", n.UserID, "err", nerr)
		}
	}
	return nil
}

func (s *WebhookService) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, ev WebhookEvent, now time.Time) ([]notify.Notification, error) {
	if ev.PaymentIntentID == "" || ev.ContractorID == "" || ev.LeadID == "" || !ev.LeadType.Valid() {
		return nil, fmt.Errorf("%w: payment_succeeded needs payment intent, contractor and lead metadata", errUnprocessable)
	}

	rec := PaymentRecord{
		ContractorID:            ev.ContractorID,
		ExternalPaymentIntentID: ev.PaymentIntentID,
		ExternalChargeID:        optional(ev.ChargeID),
		ExternalSessionID:       optional(ev.SessionID),
		IdempotencyKey:          ev.PaymentIntentID,
		Amount:                  ev.Amount,
		Currency:                ev.Currency,
		Status:                  StatusCompleted,
	}
	rec.SetLead(ev.LeadType, ev.LeadID)

	rec, created, err := s.ledger.WithTx(tx).Record(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.InfoContext(ctx, "payment already recorded", "payment_intent", ev.PaymentIntentID, "payment_id", rec.ID)
		return nil, nil
	}

	lr := s.leads.WithTx(tx)
	claimed, err := lr.Claim(ctx, ev.LeadType, ev.LeadID, ev.ContractorID, now)
	if err != nil {
		return nil, err
	}
	data := map[string]string{
		"payment_id": rec.ID,
		"lead_id":    ev.LeadID,
		"lead_type":  string(ev.LeadType),
		"amount":     rec.Amount.StringFixed(2),
		"currency":   rec.Currency,
	}
	if !claimed {
		// paid for a lead someone else claimed first; the completed payment
		// stays on the ledger so the contractor can file a refund request
		s.logger.WarnContext(ctx, "lead no longer available", "lead_id", ev.LeadID, "lead_type", ev.LeadType, "contractor_id", ev.ContractorID, "payment_id", rec.ID)
		return []notify.Notification{{
			Kind:    notify.KindLeadUnavailable,
			UserID:  ev.ContractorID,
			Subject: "Lead no longer available",
			Body:    "Your payment was received but the lead was purchased by someone else. You can request a refund from your dashboard.",
			Data:    data,
		}}, nil
	}

	if err := lr.Track(ctx, ev.ContractorID, ev.LeadID, ev.LeadType, now); err != nil {
		return nil, err
	}
	return []notify.Notification{{
		Kind:    notify.KindPaymentConfirmed,
		UserID:  ev.ContractorID,
		Subject: "Lead purchase confirmed",
		Body:    fmt.Sprintf("Your payment of %s %s was received. The lead is now in your dashboard.", rec.Amount.StringFixed(2), rec.Currency),
		Data:    data,
	}}, nil
}

func (s *WebhookService) applyPaymentFailed(ctx context.Context, tx *gorm.DB, ev WebhookEvent) ([]notify.Notification, error) {
	if ev.PaymentIntentID == "" || ev.ContractorID == "" {
		return nil, fmt.Errorf("%w: payment_failed needs payment intent and contractor metadata", errUnprocessable)
	}

	rec := PaymentRecord{
		ContractorID:            ev.ContractorID,
		ExternalPaymentIntentID: ev.PaymentIntentID,
		ExternalChargeID:        optional(ev.ChargeID),
		IdempotencyKey:          "failed:" + ev.PaymentIntentID + ":" + ev.EventID,
		Amount:                  ev.Amount,
		Currency:                ev.Currency,
		Status:                  StatusFailed,
		FailureMessage:          optional(truncate(ev.FailureMessage, 255)),
	}
	if ev.LeadType.Valid() && ev.LeadID != "" {
		rec.SetLead(ev.LeadType, ev.LeadID)
	}

	rec, created, err := s.ledger.WithTx(tx).Record(ctx, rec)
	if err != nil || !created {
		return nil, err
	}
	return []notify.Notification{{
		Kind:    notify.KindPaymentFailed,
		UserID:  ev.ContractorID,
		Subject: "Payment failed",
		Body:    "We could not process your payment. No lead was purchased.",
		Data:    map[string]string{"payment_id": rec.ID, "lead_id": ev.LeadID, "reason": ev.FailureMessage},
	}}, nil
}

func (s *WebhookService) applyChargeRefunded(ctx context.Context, tx *gorm.DB, ev WebhookEvent, now time.Time) error {
	n, err := s.ledger.WithTx(tx).MarkChargeRefunded(ctx, ev.ChargeID, ev.PaymentIntentID, now)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "charge refund applied", "charge_id", ev.ChargeID, "payment_intent", ev.PaymentIntentID, "rows", n)
	return nil
}

func payloadJSON(raw []byte) datatypes.JSON {
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	b, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return datatypes.JSON(b)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

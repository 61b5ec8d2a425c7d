// Command mockwebhook signs Stripe-format events with the webhook secret and
// posts them to a local server, for exercising the reconciler by hand.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
)

type options struct {
	url      string
	secret   string
	eventID  string
	dryRun   bool
	intentID string
	chargeID string
	amount   int64
	currency string

	contractorID string
	leadID       string
	leadType     string
}

func main() {
	var o options
	root := &cobra.Command{
		Use:   "mockwebhook",
		Short: "Send signed payment-processor events to the webhook endpoint",
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.url, "url", "http://localhost:8080/webhooks/payments", "webhook URL")
	pf.StringVar(&o.secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "webhook signing secret")
	pf.StringVar(&o.eventID, "event-id", "", "event id (random when empty)")
	pf.BoolVar(&o.dryRun, "dry-run", false, "print the signed request without sending it")
	pf.StringVar(&o.intentID, "payment-intent", "pi_"+randomHex(8), "payment intent id")
	pf.StringVar(&o.chargeID, "charge", "", "charge id")
	pf.Int64Var(&o.amount, "amount", 5000, "amount in cents")
	pf.StringVar(&o.currency, "currency", "usd", "currency")
	pf.StringVar(&o.contractorID, "contractor", "", "buyer user id (metadata)")
	pf.StringVar(&o.leadID, "lead", "", "lead id (metadata)")
	pf.StringVar(&o.leadType, "lead-type", "system_lead", "system_lead or hes_request")

	root.AddCommand(
		eventCmd(&o, "payment-succeeded", "payment_intent.succeeded", paymentIntentObject),
		eventCmd(&o, "payment-failed", "payment_intent.payment_failed", func(o *options) map[string]any {
			pi := paymentIntentObject(o)
			pi["status"] = "requires_payment_method"
			pi["last_payment_error"] = map[string]any{"message": "Your card was declined."}
			return pi
		}),
		eventCmd(&o, "charge-refunded", "charge.refunded", func(o *options) map[string]any {
			return map[string]any{
				"id":              o.chargeID,
				"object":          "charge",
				"payment_intent":  o.intentID,
				"amount_refunded": o.amount,
				"currency":        o.currency,
			}
		}),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func eventCmd(o *options, use, eventType string, object func(*options) map[string]any) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Send a " + eventType + " event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.secret == "" {
				return fmt.Errorf("--secret not provided and STRIPE_WEBHOOK_SECRET not set")
			}
			if o.chargeID == "" {
				o.chargeID = "ch_" + randomHex(8)
			}
			if o.eventID == "" {
				o.eventID = "evt_" + randomHex(12)
			}
			return send(cmd.OutOrStdout(), o, eventType, object(o))
		},
	}
}

func paymentIntentObject(o *options) map[string]any {
	return map[string]any{
		"id":            o.intentID,
		"object":        "payment_intent",
		"amount":        o.amount,
		"currency":      o.currency,
		"status":        "succeeded",
		"latest_charge": o.chargeID,
		"metadata": map[string]string{
			payments.MetaContractorID: o.contractorID,
			payments.MetaLeadID:       o.leadID,
			payments.MetaLeadType:     o.leadType,
		},
	}
}

func send(out io.Writer, o *options, eventType string, object map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"id":          o.eventID,
		"object":      "event",
		"api_version": "2024-06-20",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		return err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    o.secret,
		Timestamp: time.Now(),
	})

	fmt.Fprintf(out, "%s: %s\n", payments.StripeSignatureHeader, signed.Header)
	fmt.Fprintf(out, "Body: %s\n", body)
	if o.dryRun {
		fmt.Fprintln(out, "\n[DRY RUN] not sending")
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payments.StripeSignatureHeader, signed.Header)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(out, "\nStatus: %s\nResponse: %s\n", resp.Status, respBody)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

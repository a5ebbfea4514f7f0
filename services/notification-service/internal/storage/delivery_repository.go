package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/slotline/slotline/libs/db"
	"github.com/slotline/slotline/services/notification-service/internal/dispatch"
	"github.com/slotline/slotline/services/notification-service/internal/outbox"
)

// DeliveryRepository implements dispatch.Log. The delivery row and its
// sent/failed outcome event commit in one transaction, so the log and the
// event stream cannot disagree.
type DeliveryRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewDeliveryRepository(pool *db.Pool, outboxRepo *outbox.Repository) *DeliveryRepository {
	return &DeliveryRepository{pool: pool, outbox: outboxRepo}
}

type sentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	Kind          string    `json:"kind"`
	Channel       string    `json:"channel"`
	Gateway       string    `json:"gateway"`
	SentAt        time.Time `json:"sent_at"`
}

type failedPayload struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	Kind          string    `json:"kind"`
	Channel       string    `json:"channel"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

func (r *DeliveryRepository) Record(ctx context.Context, d dispatch.Delivery) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_deliveries
			(appointment_id, provider_id, customer_id, kind, channel, recipient, subject, body, gateway, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10, NULLIF($11, ''))
	`, d.AppointmentID, d.ProviderID, d.CustomerID, d.Kind, d.Channel, d.Recipient,
		d.Subject, d.Body, d.Gateway, d.Status, d.FailureReason)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var eventType string
	var payload []byte
	if d.Status == dispatch.StatusSent {
		eventType = outbox.EventNotificationSent
		payload, err = json.Marshal(sentPayload{
			AppointmentID: d.AppointmentID,
			ProviderID:    d.ProviderID,
			CustomerID:    d.CustomerID,
			Kind:          d.Kind,
			Channel:       d.Channel,
			Gateway:       d.Gateway,
			SentAt:        now,
		})
	} else {
		eventType = outbox.EventNotificationFailed
		payload, err = json.Marshal(failedPayload{
			AppointmentID: d.AppointmentID,
			ProviderID:    d.ProviderID,
			CustomerID:    d.CustomerID,
			Kind:          d.Kind,
			Channel:       d.Channel,
			Reason:        d.FailureReason,
			FailedAt:      now,
		})
	}
	if err != nil {
		return err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   d.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

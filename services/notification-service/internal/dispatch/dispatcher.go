// Package dispatch turns scheduling events into customer-facing messages.
// Each delivery attempt is recorded, and its outcome re-enters the event
// stream as notification.sent.v1 or notification.failed.v1.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Topics this service subscribes to. Completed appointments produce no
// customer messaging.
const (
	TopicReminderDue         = "scheduling.reminder.due.v1"
	TopicAppointmentBooked   = "scheduling.appointment.booked.v1"
	TopicAppointmentCanceled = "scheduling.appointment.canceled.v1"
)

func Topics() []string {
	return []string{TopicReminderDue, TopicAppointmentBooked, TopicAppointmentCanceled}
}

const (
	KindReminder     = "reminder"
	KindConfirmation = "confirmation"
	KindCancellation = "cancellation"

	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Delivery is one attempt on one channel.
type Delivery struct {
	AppointmentID string
	ProviderID    string
	CustomerID    string
	Kind          string
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	Gateway       string
	Status        string
	FailureReason string
}

// Log persists a delivery attempt together with its outcome event. A
// failing Log aborts handling; a failing send does not.
type Log interface {
	Record(ctx context.Context, d Delivery) error
}

type EmailSender interface {
	Send(to string, subject string, body string) error
}

type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
	Gateway() string
}

type Config struct {
	// FailSuffix forces a simulated failure for recipients ending with it.
	// Used by integration environments to exercise the failed path.
	FailSuffix string
}

type Dispatcher struct {
	log        Log
	email      EmailSender
	sms        SMSSender
	logger     *slog.Logger
	failSuffix string
}

func New(log Log, email EmailSender, sms SMSSender, logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		log:        log,
		email:      email,
		sms:        sms,
		logger:     logger,
		failSuffix: cfg.FailSuffix,
	}
}

type reminderDue struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	Start         time.Time `json:"start"`
	OffsetMinutes int       `json:"offset_minutes"`
}

type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	ServiceType   string    `json:"service_type"`
	Date          string    `json:"date"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// Handle routes one consumed message. Malformed payloads are logged and
// dropped; redelivering them would never succeed.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case TopicReminderDue:
		var p reminderDue
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			d.logger.Error("invalid reminder payload", "err", err)
			return nil
		}
		if p.AppointmentID == "" || p.CustomerEmail == "" {
			d.logger.Error("reminder payload missing fields", "appointment_id", p.AppointmentID)
			return nil
		}
		return d.dispatch(ctx, target{
			appointmentID: p.AppointmentID,
			providerID:    p.ProviderID,
			customerID:    p.CustomerID,
			email:         p.CustomerEmail,
			phone:         p.CustomerPhone,
			kind:          KindReminder,
			subject:       "Appointment reminder",
			body:          reminderBody(p.CustomerName, p.Start, p.OffsetMinutes),
			sms:           reminderSMS(p.Start),
		})
	case TopicAppointmentBooked:
		return d.handleAppointment(ctx, msg, KindConfirmation)
	case TopicAppointmentCanceled:
		return d.handleAppointment(ctx, msg, KindCancellation)
	default:
		d.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}
}

func (d *Dispatcher) handleAppointment(ctx context.Context, msg kafka.Message, kind string) error {
	var p appointmentEvent
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		d.logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if p.AppointmentID == "" || p.CustomerEmail == "" {
		d.logger.Error("appointment payload missing fields", "appointment_id", p.AppointmentID, "topic", msg.Topic)
		return nil
	}

	t := target{
		appointmentID: p.AppointmentID,
		providerID:    p.ProviderID,
		customerID:    p.CustomerID,
		email:         p.CustomerEmail,
		phone:         p.CustomerPhone,
		kind:          kind,
	}
	switch kind {
	case KindConfirmation:
		t.subject = "Appointment confirmed"
		t.body = confirmationBody(p.CustomerName, p.ServiceType, p.Start, p.End)
		t.sms = confirmationSMS(p.ServiceType, p.Start)
	case KindCancellation:
		t.subject = "Appointment canceled"
		t.body = cancellationBody(p.CustomerName, p.ServiceType, p.Start)
		t.sms = cancellationSMS(p.ServiceType, p.Start)
	}
	return d.dispatch(ctx, t)
}

type target struct {
	appointmentID string
	providerID    string
	customerID    string
	email         string
	phone         string
	kind          string
	subject       string
	body          string
	sms           string
}

// dispatch attempts email always and SMS when a phone number is on file.
// Send failures are recorded as failed deliveries, not returned: retrying
// the whole event would re-send the channels that succeeded.
func (d *Dispatcher) dispatch(ctx context.Context, t target) error {
	if err := d.deliverEmail(ctx, t); err != nil {
		return err
	}
	if t.phone != "" && d.sms != nil {
		if err := d.deliverSMS(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) deliverEmail(ctx context.Context, t target) error {
	del := Delivery{
		AppointmentID: t.appointmentID,
		ProviderID:    t.providerID,
		CustomerID:    t.customerID,
		Kind:          t.kind,
		Channel:       ChannelEmail,
		Recipient:     t.email,
		Subject:       t.subject,
		Body:          t.body,
		Status:        StatusSent,
		Gateway:       "smtp",
	}
	if d.simulateFailure(t.email) {
		del.Status = StatusFailed
		del.FailureReason = "simulated failure"
		del.Gateway = ""
	} else if err := d.email.Send(t.email, t.subject, t.body); err != nil {
		d.logger.Error("email send failed", "err", err, "recipient", t.email, "appointment_id", t.appointmentID)
		del.Status = StatusFailed
		del.FailureReason = err.Error()
		del.Gateway = ""
	}
	return d.record(ctx, del)
}

func (d *Dispatcher) deliverSMS(ctx context.Context, t target) error {
	del := Delivery{
		AppointmentID: t.appointmentID,
		ProviderID:    t.providerID,
		CustomerID:    t.customerID,
		Kind:          t.kind,
		Channel:       ChannelSMS,
		Recipient:     t.phone,
		Body:          t.sms,
		Status:        StatusSent,
		Gateway:       d.sms.Gateway(),
	}
	if d.simulateFailure(t.phone) {
		del.Status = StatusFailed
		del.FailureReason = "simulated failure"
		del.Gateway = ""
	} else if err := d.sms.Send(ctx, t.phone, del.Body); err != nil {
		d.logger.Error("sms send failed", "err", err, "recipient", t.phone, "appointment_id", t.appointmentID)
		del.Status = StatusFailed
		del.FailureReason = err.Error()
		del.Gateway = ""
	}
	return d.record(ctx, del)
}

func (d *Dispatcher) record(ctx context.Context, del Delivery) error {
	if err := d.log.Record(ctx, del); err != nil {
		d.logger.Error("failed to persist delivery", "err", err, "appointment_id", del.AppointmentID, "channel", del.Channel)
		return err
	}
	d.logger.Info("delivery recorded",
		"appointment_id", del.AppointmentID,
		"kind", del.Kind,
		"channel", del.Channel,
		"status", del.Status,
	)
	return nil
}

func (d *Dispatcher) simulateFailure(recipient string) bool {
	return d.failSuffix != "" && strings.HasSuffix(recipient, d.failSuffix)
}

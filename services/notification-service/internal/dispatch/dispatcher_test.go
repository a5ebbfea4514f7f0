package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/slotline/slotline/services/notification-service/internal/dispatch"
)

type fakeLog struct {
	deliveries []dispatch.Delivery
	err        error
}

func (l *fakeLog) Record(_ context.Context, d dispatch.Delivery) error {
	if l.err != nil {
		return l.err
	}
	l.deliveries = append(l.deliveries, d)
	return nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (e *fakeEmail) Send(to, _, _ string) error {
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, to)
	return nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (s *fakeSMS) Send(_ context.Context, to, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *fakeSMS) Gateway() string { return "sms-test" }

func reminderMessage(t *testing.T, phone string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"reminder_id":    "41",
		"appointment_id": "appt-1",
		"provider_id":    "prov-1",
		"customer_id":    "cust-1",
		"customer_name":  "Alice",
		"customer_email": "alice@example.com",
		"customer_phone": phone,
		"start":          time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"offset_minutes": 1440,
	})
	require.NoError(t, err)
	return kafka.Message{Topic: dispatch.TopicReminderDue, Value: payload}
}

func appointmentMessage(t *testing.T, topic string) kafka.Message {
	t.Helper()
	start := time.Now().Add(48 * time.Hour).UTC()
	payload, err := json.Marshal(map[string]any{
		"appointment_id": "appt-2",
		"provider_id":    "prov-1",
		"customer_id":    "cust-1",
		"customer_name":  "Alice",
		"customer_email": "alice@example.com",
		"service_type":   "consultation",
		"date":           start.Format("2006-01-02"),
		"start":          start.Format(time.RFC3339),
		"end":            start.Add(30 * time.Minute).Format(time.RFC3339),
	})
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: payload}
}

func TestReminderDeliversEmailAndSMS(t *testing.T) {
	log := &fakeLog{}
	mail := &fakeEmail{}
	txt := &fakeSMS{}
	d := dispatch.New(log, mail, txt, nil, dispatch.Config{})

	require.NoError(t, d.Handle(context.Background(), reminderMessage(t, "+15550100")))

	require.Equal(t, []string{"alice@example.com"}, mail.sent)
	require.Equal(t, []string{"+15550100"}, txt.sent)
	require.Len(t, log.deliveries, 2)

	first := log.deliveries[0]
	require.Equal(t, dispatch.KindReminder, first.Kind)
	require.Equal(t, dispatch.ChannelEmail, first.Channel)
	require.Equal(t, dispatch.StatusSent, first.Status)
	require.Equal(t, "Appointment reminder", first.Subject)
	require.Equal(t, "smtp", first.Gateway)

	second := log.deliveries[1]
	require.Equal(t, dispatch.ChannelSMS, second.Channel)
	require.Equal(t, dispatch.StatusSent, second.Status)
	require.Equal(t, "sms-test", second.Gateway)
	require.NotEmpty(t, second.Body)
}

func TestReminderWithoutPhoneSkipsSMS(t *testing.T) {
	log := &fakeLog{}
	txt := &fakeSMS{}
	d := dispatch.New(log, &fakeEmail{}, txt, nil, dispatch.Config{})

	require.NoError(t, d.Handle(context.Background(), reminderMessage(t, "")))

	require.Empty(t, txt.sent)
	require.Len(t, log.deliveries, 1)
	require.Equal(t, dispatch.ChannelEmail, log.deliveries[0].Channel)
}

func TestBookedProducesConfirmation(t *testing.T) {
	log := &fakeLog{}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	require.NoError(t, d.Handle(context.Background(), appointmentMessage(t, dispatch.TopicAppointmentBooked)))

	require.Len(t, log.deliveries, 1)
	require.Equal(t, dispatch.KindConfirmation, log.deliveries[0].Kind)
	require.Equal(t, "Appointment confirmed", log.deliveries[0].Subject)
	require.Contains(t, log.deliveries[0].Body, "consultation")
}

func TestCanceledProducesCancellation(t *testing.T) {
	log := &fakeLog{}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	require.NoError(t, d.Handle(context.Background(), appointmentMessage(t, dispatch.TopicAppointmentCanceled)))

	require.Len(t, log.deliveries, 1)
	require.Equal(t, dispatch.KindCancellation, log.deliveries[0].Kind)
	require.Equal(t, "Appointment canceled", log.deliveries[0].Subject)
}

func TestEmailFailureRecordedNotReturned(t *testing.T) {
	log := &fakeLog{}
	mail := &fakeEmail{err: errors.New("smtp down")}
	txt := &fakeSMS{}
	d := dispatch.New(log, mail, txt, nil, dispatch.Config{})

	require.NoError(t, d.Handle(context.Background(), reminderMessage(t, "+15550100")))

	require.Len(t, log.deliveries, 2)
	require.Equal(t, dispatch.StatusFailed, log.deliveries[0].Status)
	require.Equal(t, "smtp down", log.deliveries[0].FailureReason)
	require.Empty(t, log.deliveries[0].Gateway)
	// The SMS channel is independent of the email outcome.
	require.Equal(t, dispatch.StatusSent, log.deliveries[1].Status)
}

func TestFailSuffixSimulatesFailure(t *testing.T) {
	log := &fakeLog{}
	mail := &fakeEmail{}
	d := dispatch.New(log, mail, &fakeSMS{}, nil, dispatch.Config{FailSuffix: "@example.com"})

	require.NoError(t, d.Handle(context.Background(), reminderMessage(t, "")))

	require.Empty(t, mail.sent)
	require.Len(t, log.deliveries, 1)
	require.Equal(t, dispatch.StatusFailed, log.deliveries[0].Status)
	require.Equal(t, "simulated failure", log.deliveries[0].FailureReason)
}

func TestMalformedPayloadDropped(t *testing.T) {
	log := &fakeLog{}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	msg := kafka.Message{Topic: dispatch.TopicReminderDue, Value: []byte("{not json")}
	require.NoError(t, d.Handle(context.Background(), msg))
	require.Empty(t, log.deliveries)
}

func TestMissingRecipientDropped(t *testing.T) {
	log := &fakeLog{}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	payload, err := json.Marshal(map[string]any{"appointment_id": "appt-1"})
	require.NoError(t, err)
	msg := kafka.Message{Topic: dispatch.TopicAppointmentBooked, Value: payload}
	require.NoError(t, d.Handle(context.Background(), msg))
	require.Empty(t, log.deliveries)
}

func TestUnexpectedTopicIgnored(t *testing.T) {
	log := &fakeLog{}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	msg := kafka.Message{Topic: "scheduling.appointment.completed.v1", Value: []byte("{}")}
	require.NoError(t, d.Handle(context.Background(), msg))
	require.Empty(t, log.deliveries)
}

func TestLogFailurePropagates(t *testing.T) {
	log := &fakeLog{err: errors.New("db down")}
	d := dispatch.New(log, &fakeEmail{}, &fakeSMS{}, nil, dispatch.Config{})

	err := d.Handle(context.Background(), reminderMessage(t, ""))
	require.Error(t, err)
}

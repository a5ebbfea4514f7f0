package dispatch

import (
	"fmt"
	"time"
)

// Appointment times are rendered in UTC; the engine does not propagate the
// provider's timezone on events yet.
// TODO: carry the rule timezone on appointment events and render local times.
func clock(t time.Time) string {
	return t.UTC().Format("Mon, 2 Jan 2006 at 15:04 UTC")
}

func reminderBody(name string, start time.Time, offsetMinutes int) string {
	lead := "soon"
	switch {
	case offsetMinutes >= 60 && offsetMinutes%60 == 0:
		lead = fmt.Sprintf("in %d hour(s)", offsetMinutes/60)
	case offsetMinutes > 0:
		lead = fmt.Sprintf("in %d minute(s)", offsetMinutes)
	}
	return fmt.Sprintf("Hi %s,\n\nThis is a reminder that your appointment starts %s, on %s.\n",
		name, lead, clock(start))
}

func confirmationBody(name, serviceType string, start, end time.Time) string {
	return fmt.Sprintf("Hi %s,\n\nYour %s appointment is confirmed for %s (ends %s).\n",
		name, serviceType, clock(start), end.UTC().Format("15:04 UTC"))
}

func cancellationBody(name, serviceType string, start time.Time) string {
	return fmt.Sprintf("Hi %s,\n\nYour %s appointment on %s has been canceled.\n",
		name, serviceType, clock(start))
}

func reminderSMS(start time.Time) string {
	return fmt.Sprintf("Reminder: your appointment is on %s.", clock(start))
}

func confirmationSMS(serviceType string, start time.Time) string {
	return fmt.Sprintf("Confirmed: %s appointment on %s.", serviceType, clock(start))
}

func cancellationSMS(serviceType string, start time.Time) string {
	return fmt.Sprintf("Canceled: %s appointment on %s.", serviceType, clock(start))
}

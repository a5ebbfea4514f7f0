package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	msg := buildMessage("no-reply@slotline.local", "alice@example.com", "Appointment reminder", "See you soon.", now)

	require.True(t, strings.HasPrefix(msg, "From: no-reply@slotline.local\r\n"))
	require.Contains(t, msg, "To: alice@example.com\r\n")
	require.Contains(t, msg, "Subject: Appointment reminder\r\n")
	require.Contains(t, msg, "Date: Sat, 14 Mar 2026 09:30:00 +0000\r\n")
	require.Contains(t, msg, "Content-Type: text/plain; charset=utf-8\r\n")

	// Headers and body are separated by a blank line.
	parts := strings.SplitN(msg, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	require.Equal(t, "See you soon.\r\n", parts[1])
}

func TestNewSMTPSenderDefaultsFrom(t *testing.T) {
	s := NewSMTPSender(" localhost ", " 1025 ", "  ")
	require.Equal(t, "localhost:1025", s.addr)
	require.Equal(t, "no-reply@slotline.local", s.from)
}

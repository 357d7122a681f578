package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInvitation = Invitation{
	To:           "member@example.com",
	InviterEmail: "owner@example.com",
	AcceptURL:    "https://cabinet.example.com/invitations/tok123",
	ExpiresAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	Rights:       []string{"view", "edit"},
}

func TestInvitationMessage(t *testing.T) {
	msg, err := invitationMessage("cabinet@example.com", testInvitation)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "To: <member@example.com>")
	assert.Contains(t, raw, "From: <cabinet@example.com>")
	assert.Contains(t, raw, "owner@example.com shared their Reddit account cabinet with you")
}

func TestInvitationBody(t *testing.T) {
	body := invitationBody(testInvitation)

	assert.Contains(t, body, "owner@example.com invited you")
	assert.Contains(t, body, "You will be able to: view, edit.")
	assert.Contains(t, body, testInvitation.AcceptURL)
	assert.Contains(t, body, "2026-03-01 12:00 UTC")
}

func TestInvitationMessage_InvalidAddress(t *testing.T) {
	inv := testInvitation
	inv.To = "not an address"

	_, err := invitationMessage("cabinet@example.com", inv)
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, m.SendInvitation(context.Background(), testInvitation))

	out := buf.String()
	assert.True(t, strings.Contains(out, `"to":"member@example.com"`), out)
	assert.Contains(t, out, `"component":"mailer"`)
}

func TestNewSMTP_Defaults(t *testing.T) {
	m := NewSMTP(SMTPConfig{Host: "smtp.example.com"}, slog.Default())
	assert.Equal(t, 587, m.cfg.Port)
	assert.Equal(t, 15*time.Second, m.cfg.Timeout)

	c, err := m.client()
	require.NoError(t, err)
	assert.NotNil(t, c)
}

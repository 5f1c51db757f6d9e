package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseNotificationKind(t *testing.T) {
	tests := []struct {
		in   string
		want NotificationKind
		ok   bool
	}{
		{"approval_required", NotificationKindApprovalRequired, true},
		{"Approval-Completed", NotificationKindApprovalCompleted, true},
		{" new_booking ", NotificationKindNewBooking, true},
		{"SYSTEM_ALERT", NotificationKindSystemAlert, true},
		{"generic", NotificationKindGeneric, true},
		{"payment_failed", NotificationKindGeneric, false},
		{"", NotificationKindGeneric, false},
	}

	for _, tt := range tests {
		got, ok := ParseNotificationKind(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestNotificationTime(t *testing.T) {
	n := Notification{CreatedAt: 1700000000123}
	assert.Equal(t, time.UnixMilli(1700000000123), n.Time())
}

func TestConnectionStatusIsConnected(t *testing.T) {
	assert.True(t, ConnectionStatus{State: ConnectionStateConnected}.IsConnected())
	assert.False(t, ConnectionStatus{State: ConnectionStateReconnecting}.IsConnected())
	assert.False(t, ConnectionStatus{State: ConnectionStateDisconnected, Failed: true}.IsConnected())
}

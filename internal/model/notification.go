package model

import (
	"strings"
	"time"
)

type NotificationKind string

const (
	NotificationKindApprovalRequired  NotificationKind = "approval_required"
	NotificationKindApprovalCompleted NotificationKind = "approval_completed"
	NotificationKindNewBooking        NotificationKind = "new_booking"
	NotificationKindSystemAlert       NotificationKind = "system_alert"
	NotificationKindGeneric           NotificationKind = "generic"
)

// ParseNotificationKind folds case and dashes; anything outside the known
// set is reported as generic with ok=false.
func ParseNotificationKind(s string) (NotificationKind, bool) {
	k := NotificationKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch k {
	case NotificationKindApprovalRequired,
		NotificationKindApprovalCompleted,
		NotificationKindNewBooking,
		NotificationKindSystemAlert,
		NotificationKindGeneric:
		return k, true
	}
	return NotificationKindGeneric, false
}

// Notification is one server-pushed event. Only the notification log
// changes Read.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt int64            `json:"createdAt"`
	Read      bool             `json:"read"`
}

// Time returns CreatedAt (epoch milliseconds) as a time.Time.
func (n Notification) Time() time.Time {
	return time.UnixMilli(n.CreatedAt)
}

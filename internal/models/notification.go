package models

import "time"

// NotificationType identifies which alert rule fired.
type NotificationType string

const (
	NotificationDailyDrop         NotificationType = "daily_drop"
	NotificationDistanceThreshold NotificationType = "distance_threshold"
	NotificationBuySignal         NotificationType = "buy_signal"
)

// Notification is one fired alert event. Delivery mechanics are out of scope;
// the log doubles as the de-duplication record: before firing, the notifier
// checks for a matching (instrument, type, threshold) entry within the
// de-dup window.
type Notification struct {
	ID           string           `json:"id" badgerhold:"key"`
	InstrumentID string           `json:"instrument_id" badgerhold:"index"`
	Ticker       string           `json:"ticker"`
	Type         NotificationType `json:"type"`
	Threshold    float64          `json:"threshold,omitempty"`
	Message      string           `json:"message"`
	Price        float64          `json:"price,omitempty"`
	At           time.Time        `json:"at"`
}

package types

// Notification is handed to a notification channel when an alert fires.
type Notification struct {
	Title   string
	Body    string
	Payload NotificationPayload
}

type NotificationPayload struct {
	AlertID string    `json:"alertId"`
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price"`
	Type    AlertType `json:"type"`
}

package store

// WebhookDelivery is one pending outbound webhook attempt as seen by
// the delivery worker.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

package entity

import "time"

// DeliveryOutcome is what the CRM answered for a single delivery attempt.
type DeliveryOutcome struct {
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
}

func (o DeliveryOutcome) Succeeded() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// AccessToken is only ever kept in memory.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	InstanceURL string    `json:"instance_url"`
	IssuedAt    time.Time `json:"-"`
}

// Error classifications stored on failed leads.
const (
	ErrorTypeAuth      = "AuthError"
	ErrorTypeTransport = "TransportError"
	ErrorTypeDelivery  = "DeliveryError"
)

// IsSuccessStatus reports whether code is a 2xx status.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

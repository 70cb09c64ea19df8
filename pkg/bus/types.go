package bus

import (
	"encoding/json"
	"time"
)

// Delivery is one webhook POST accepted from the platform and queued for
// asynchronous processing. The HTTP handler acks before this is consumed, so
// a Delivery failing can never surface to the platform caller.
type Delivery struct {
	Tenant     string          `json:"tenant"`
	Channel    string          `json:"channel"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

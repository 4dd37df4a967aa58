package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

const defaultRejectionMessage = "Unknown error"

var acknowledgedWords = map[string]struct{}{
	"true":    {},
	"1":       {},
	"success": {},
	"ok":      {},
}

// IsAcknowledged normalizes the partner's success marker. The partner has been
// seen to send a boolean, the string "true", or a numeric code.
func IsAcknowledged(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		_, ok := acknowledgedWords[strings.ToLower(strings.TrimSpace(val))]
		return ok
	case json.Number:
		return val.String() == "1" || val.String() == "200"
	case float64:
		return val == 1 || val == 200
	default:
		return false
	}
}

// acknowledged checks the body-level markers in priority order.
func acknowledged(body map[string]any) bool {
	for _, key := range []string{"status", "success"} {
		if v, ok := body[key]; ok {
			return IsAcknowledged(v)
		}
	}
	return false
}

// ExtractExternalID looks for the partner order id: order_details.tid, then tid, then order_id.
func ExtractExternalID(body map[string]any) string {
	if details, ok := body["order_details"].(map[string]any); ok {
		if id := StringField(details, "tid"); id != "" {
			return id
		}
	}
	if id := StringField(body, "tid"); id != "" {
		return id
	}
	return StringField(body, "order_id")
}

func rejectionMessage(body map[string]any) string {
	for _, key := range []string{"msg", "message", "error"} {
		if msg := StringField(body, key); msg != "" {
			return msg
		}
	}
	return defaultRejectionMessage
}

// StringField reads a scalar field as text. Numbers decoded with UseNumber keep their exact form.
func StringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// DecodeObject parses a JSON object keeping numbers exact.
func DecodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, ErrMalformedPayload
	}
	return body, nil
}

package service

import (
	"encoding/json"
	"strings"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/gateway"
)

// Notification is the normalized content of one gateway webhook.
type Notification struct {
	ExternalID string
	// Status is the mapped lifecycle status, or empty when the partner
	// reported something outside the recognized vocabulary.
	Status              domain.Status
	ReportedStatus      string
	SettlementReference string
	Raw                 json.RawMessage
}

var notificationStatuses = map[string]domain.Status{
	"success":   domain.StatusCompleted,
	"completed": domain.StatusCompleted,
	"failed":    domain.StatusFailed,
	"failure":   domain.StatusFailed,
}

// ParseNotification extracts the order details from a webhook body. The
// partner has used three shapes: a top-level order_details object, the
// details flattened at the root, and details nested under payload.
func ParseNotification(body []byte) (*Notification, error) {
	root, err := gateway.DecodeObject(body)
	if err != nil {
		return nil, &MalformedNotificationError{Reason: "body is not a JSON object"}
	}

	details := locateOrderDetails(root)
	if details == nil {
		return nil, &MalformedNotificationError{Reason: "missing tid"}
	}

	reported := firstField("status", details, root)
	return &Notification{
		ExternalID:          gateway.StringField(details, "tid"),
		Status:              mapNotificationStatus(reported),
		ReportedStatus:      reported,
		SettlementReference: settlementReference(details),
		Raw:                 append(json.RawMessage(nil), body...),
	}, nil
}

func locateOrderDetails(root map[string]any) map[string]any {
	if details, ok := root["order_details"].(map[string]any); ok && gateway.StringField(details, "tid") != "" {
		return details
	}
	if gateway.StringField(root, "tid") != "" {
		return root
	}
	if payload, ok := root["payload"].(map[string]any); ok {
		if details, ok := payload["order_details"].(map[string]any); ok && gateway.StringField(details, "tid") != "" {
			return details
		}
	}
	return nil
}

func mapNotificationStatus(reported string) domain.Status {
	return notificationStatuses[strings.ToLower(strings.TrimSpace(reported))]
}

func settlementReference(details map[string]any) string {
	for _, key := range []string{"bank_utr", "utr", "rrn"} {
		if ref := gateway.StringField(details, key); ref != "" {
			return ref
		}
	}
	return domain.SettlementReferenceUnavailable
}

func firstField(key string, objects ...map[string]any) string {
	for _, m := range objects {
		if v := gateway.StringField(m, key); v != "" {
			return v
		}
	}
	return ""
}

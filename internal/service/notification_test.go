package service

import (
	"testing"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		tid      string
		status   domain.Status
		reported string
		utr      string
	}{
		{"order details", `{"order_details":{"tid":"T1","status":"success","bank_utr":"U1"}}`, "T1", domain.StatusCompleted, "success", "U1"},
		{"status beside order details", `{"status":"failed","order_details":{"tid":"T1","utr":"U5"}}`, "T1", domain.StatusFailed, "failed", "U5"},
		{"flat", `{"tid":"T2","status":"completed","rrn":"R1"}`, "T2", domain.StatusCompleted, "completed", "R1"},
		{"nested", `{"payload":{"order_details":{"tid":"T3","status":"FAILURE"}}}`, "T3", domain.StatusFailed, "FAILURE", domain.SettlementReferenceUnavailable},
		{"numeric tid", `{"tid":12345,"status":"pending"}`, "12345", "", "pending", domain.SettlementReferenceUnavailable},
		{"bank utr wins", `{"tid":"T4","bank_utr":"B","utr":"U","rrn":"R"}`, "T4", "", "", "B"},
		{"empty order details falls through to root", `{"order_details":{},"tid":"T5"}`, "T5", "", "", domain.SettlementReferenceUnavailable},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.tid, n.ExternalID)
			assert.Equal(t, tc.status, n.Status)
			assert.Equal(t, tc.reported, n.ReportedStatus)
			assert.Equal(t, tc.utr, n.SettlementReference)
			assert.JSONEq(t, tc.body, string(n.Raw))
		})
	}
}

func TestParseNotificationRejectsMissingTid(t *testing.T) {
	for _, body := range []string{`{}`, `{"order_details":{"status":"success"}}`, `{"payload":{}}`, `{"tid":""}`, `"str"`} {
		_, err := ParseNotification([]byte(body))
		var merr *MalformedNotificationError
		assert.ErrorAs(t, err, &merr, body)
	}
}

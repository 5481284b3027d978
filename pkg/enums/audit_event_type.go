package enums

import "fmt"

// AuditEventType classifies inventory audit records.
type AuditEventType string

const (
	AuditEventAdjustment  AuditEventType = "adjustment"
	AuditEventReservation AuditEventType = "reservation"
	AuditEventRelease     AuditEventType = "release"
	AuditEventFulfillment AuditEventType = "fulfillment"
	AuditEventReceipt     AuditEventType = "receipt"
	AuditEventTransfer    AuditEventType = "transfer"
	AuditEventWriteOff    AuditEventType = "write_off"
	AuditEventCorrection  AuditEventType = "correction"
)

var validAuditEventTypes = []AuditEventType{
	AuditEventAdjustment,
	AuditEventReservation,
	AuditEventRelease,
	AuditEventFulfillment,
	AuditEventReceipt,
	AuditEventTransfer,
	AuditEventWriteOff,
	AuditEventCorrection,
}

// IsValid reports whether the value is a known AuditEventType.
func (t AuditEventType) IsValid() bool {
	for _, candidate := range validAuditEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAuditEventType converts raw input into an AuditEventType.
func ParseAuditEventType(value string) (AuditEventType, error) {
	for _, candidate := range validAuditEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit event type %q", value)
}

package domain

type DeviceClass string

const (
	ClassRelay   DeviceClass = "relay"
	ClassDimmer  DeviceClass = "dimmer"
	ClassUnknown DeviceClass = "unknown"
)

// DeviceStatus is the authoritative state of one device as reported by the
// QwikSwitch cloud. Value is 0..100 for both relays (0 or 100) and dimmers.
type DeviceStatus struct {
	DeviceID string
	Class    DeviceClass
	Value    int
}

// StatusMap holds the result of one poll cycle, keyed by device ID.
type StatusMap map[string]DeviceStatus

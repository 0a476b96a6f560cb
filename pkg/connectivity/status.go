// Package connectivity observes the device's network link state and reduces
// it to a tri-state status (online/offline/unknown) that the offline
// coordinator consumes.
package connectivity

// Status is the reduced connectivity state.
type Status int

const (
	// StatusUnknown is the initial/ambiguous state, reported when the
	// platform returns no signal at all.
	StatusUnknown Status = iota
	// StatusOffline means the only reported technology is "none".
	StatusOffline
	// StatusOnline means at least one real link is present.
	StatusOnline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Technology identifies an active network interface type as reported by
// the platform source.
type Technology string

const (
	TechWifi      Technology = "wifi"
	TechCellular  Technology = "cellular"
	TechEthernet  Technology = "ethernet"
	TechBluetooth Technology = "bluetooth"
	TechVPN       Technology = "vpn"
	TechOther     Technology = "other"
	TechNone      Technology = "none"
)

// Classify reduces a batch of technology tags to a Status.
//
// An empty batch is ambiguous and maps to StatusUnknown. A batch containing
// any real technology maps to StatusOnline, even if a spurious "none" entry
// arrived in the same batch; presence of a real link wins. Only a batch
// consisting entirely of "none" maps to StatusOffline.
func Classify(tags []Technology) Status {
	if len(tags) == 0 {
		return StatusUnknown
	}
	for _, t := range tags {
		if t != TechNone {
			return StatusOnline
		}
	}
	return StatusOffline
}

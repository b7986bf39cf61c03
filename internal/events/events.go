// Package events defines the narrow boundary between the audio core and
// the surrounding UPnP controller: an outbound Callback the core fires to
// make the renderer do something, and an inbound Notification the
// surrounding layer delivers when the renderer reports what it is
// actually doing. Per spec.md §1, this is the entire non-owning interface
// the core has to its host; nothing else crosses this package boundary.
package events

// Action identifies a renderer-directed action the SlimProto client
// requests of the surrounding UPnP layer (spec.md §4.1).
type Action int

const (
	ActionStop Action = iota
	ActionPause
	ActionUnpause
	ActionOnOff
	ActionVolume
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "SQ_STOP"
	case ActionPause:
		return "SQ_PAUSE"
	case ActionUnpause:
		return "SQ_UNPAUSE"
	case ActionOnOff:
		return "SQ_ONOFF"
	case ActionVolume:
		return "SQ_VOLUME"
	default:
		return "SQ_UNKNOWN"
	}
}

// Callback is fired by the core toward one renderer, identified by its
// opaque MR handle. arg carries action-specific data: bool for
// ActionOnOff, uint16 (0-65535 scaled volume) for ActionVolume, nil
// otherwise (ActionStop, ActionPause and ActionUnpause carry nil).
type Callback func(mr any, action Action, arg any)

// NotificationKind enumerates what the renderer reported back to the
// bridge (spec.md §1, external interface (c)).
type NotificationKind int

const (
	NotifyPlay NotificationKind = iota
	NotifyPause
	NotifyStop
	NotifyTime
	NotifyVolume
)

// Notification is what the surrounding layer delivers into a
// PlayerContext when the renderer it is driving reports a state change.
type Notification struct {
	Kind NotificationKind

	// TrackIndex identifies which track the report concerns (Play/Stop).
	TrackIndex uint16

	// MsPlayed is populated for NotifyTime.
	MsPlayed uint32

	// Volume is populated for NotifyVolume, 0-100.
	Volume int
}

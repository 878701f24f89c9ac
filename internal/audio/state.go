// SPDX-License-Identifier: MIT
package audio

// State is the playback state of a Source.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

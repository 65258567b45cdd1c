package models

import "time"

// EventKind names a notification raised towards the user interface.
type EventKind string

const (
	EventStageChanged        EventKind = "stage_changed"
	EventOfflineModeEntered  EventKind = "offline_mode_entered"
	EventTimeUp              EventKind = "time_up"
	EventEngagementMilestone EventKind = "engagement_milestone"
	EventSessionRecovered    EventKind = "session_recovered"
	EventAssistantMessage    EventKind = "assistant_message"
)

// Event is emitted by a session. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Stage    Stage         `json:"stage,omitempty"`
	Message  *Message      `json:"message,omitempty"`
	Snapshot *Conversation `json:"snapshot,omitempty"`
	At       time.Time     `json:"at"`
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"strings"
	"time"
)

// Orientation selects landscape or portrait output framing.
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// ParseOrientation normalizes an orientation string. Empty defaults to landscape.
func ParseOrientation(s string) (Orientation, bool) {
	switch Orientation(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrientationLandscape:
		return OrientationLandscape, true
	case OrientationPortrait:
		return OrientationPortrait, true
	}
	return "", false
}

// ReasonCode explains why a session reached its terminal state.
// Keep these stable: activity logs and API clients depend on them.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonUserStop       ReasonCode = "user_stop"
	ReasonScheduledStop  ReasonCode = "scheduled_stop"
	ReasonCompleted      ReasonCode = "completed"
	ReasonEncoderCrashed ReasonCode = "encoder_crashed"
	ReasonSpawnFailed    ReasonCode = "spawn_failed"
	ReasonShutdown       ReasonCode = "shutdown"
	ReasonOrphaned       ReasonCode = "orphaned"
)

// Asset is the source video as reported by the asset resolver.
type Asset struct {
	ID               string  `json:"id"`
	Path             string  `json:"path"`
	DurationSeconds  float64 `json:"durationSeconds"`
	SourceResolution string  `json:"sourceResolution,omitempty"`
}

// StartRequest is what an account asks for when starting a stream.
type StartRequest struct {
	AssetID         string
	Platform        string
	DestinationKey  string
	QualityTier     string
	Orientation     Orientation
	Loop            bool
	ScheduledStopAt *time.Time
}

// StreamSession is one re-streaming job.
type StreamSession struct {
	ID              string
	Owner           string
	Asset           Asset
	Platform        string
	DestinationKey  string
	QualityTier     string
	Orientation     Orientation
	Loop            bool
	ScheduledStopAt *time.Time

	State    State
	Reason   ReasonCode
	PID      int // set iff State occupies a slot
	ExitCode *int

	RequestedAt time.Time
	StartedAt   *time.Time
	StoppedAt   *time.Time
}

// Clone returns a deep copy safe to hand out of the registry lock.
func (s *StreamSession) Clone() StreamSession {
	c := *s
	c.ScheduledStopAt = cloneTime(s.ScheduledStopAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.StoppedAt = cloneTime(s.StoppedAt)
	if s.ExitCode != nil {
		code := *s.ExitCode
		c.ExitCode = &code
	}
	return c
}

// Transition moves the session to next, enforcing the state machine.
func (s *StreamSession) Transition(next State) error {
	if !CanTransition(s.State, next) {
		return &IllegalTransitionError{From: s.State, To: next}
	}
	s.State = next
	return nil
}

// Summary is the API-facing view of a session. The destination key is never exposed.
type Summary struct {
	ID              string     `json:"sessionId"`
	AssetID         string     `json:"assetId"`
	Platform        string     `json:"platform"`
	QualityTier     string     `json:"qualityTier"`
	Orientation     string     `json:"orientation"`
	Loop            bool       `json:"loop"`
	State           State      `json:"state"`
	Reason          ReasonCode `json:"reason,omitempty"`
	Active          bool       `json:"active"`
	ScheduledStopAt *time.Time `json:"scheduledStopAt,omitempty"`
	RequestedAt     time.Time  `json:"requestedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	StoppedAt       *time.Time `json:"stoppedAt,omitempty"`
}

// Summarize builds the API view of s.
func (s *StreamSession) Summarize() Summary {
	return Summary{
		ID:              s.ID,
		AssetID:         s.Asset.ID,
		Platform:        s.Platform,
		QualityTier:     s.QualityTier,
		Orientation:     string(s.Orientation),
		Loop:            s.Loop,
		State:           s.State,
		Reason:          s.Reason,
		Active:          s.State.OccupiesSlot(),
		ScheduledStopAt: cloneTime(s.ScheduledStopAt),
		RequestedAt:     s.RequestedAt,
		StartedAt:       cloneTime(s.StartedAt),
		StoppedAt:       cloneTime(s.StoppedAt),
	}
}

// Activity is one entry of the per-account activity log.
type Activity struct {
	Owner     string
	Action    string
	Details   string
	SessionID string
	ClientIP  string
	At        time.Time
}

// Activity actions.
const (
	ActionStreamStart  = "STREAM_START"
	ActionStreamStop   = "STREAM_STOP"
	ActionStreamFailed = "STREAM_FAILED"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

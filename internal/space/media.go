package space

import (
	"errors"
	"sync"
)

// ErrAlreadyRecording is returned when a recording session is already active.
var ErrAlreadyRecording = errors.New("already recording")

// ErrNotRecording is returned when no recording session is active.
var ErrNotRecording = errors.New("not recording")

// ErrNotRecorder is returned when a stop is attempted by a user who is
// neither the recorder nor staff.
var ErrNotRecorder = errors.New("not the recorder")

// RecordingSession is a space's active (or just-stopped) recording state.
type RecordingSession struct {
	IsRecording      bool   `json:"isRecording"`
	RecorderID       string `json:"recorderId"`
	RecorderNickname string `json:"recorderNickname"`
	StartedAt        int64  `json:"startedAt"`
}

// Spotlight is an active spotlight entry mirrored from the durable grant
// store for fast broadcast. The store remains authoritative.
type Spotlight struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
}

// MediaState holds per-space media coordination state: the single active
// recording, active spotlights, and the proximity-mode flag.
type MediaState struct {
	mu         sync.Mutex
	recordings map[string]RecordingSession
	spotlights map[string]map[string]Spotlight
	proximity  map[string]bool
}

// NewMediaState creates an empty MediaState.
func NewMediaState() *MediaState {
	return &MediaState{
		recordings: make(map[string]RecordingSession),
		spotlights: make(map[string]map[string]Spotlight),
		proximity:  make(map[string]bool),
	}
}

// StartRecording begins a recording session for the space.
//
// Postcondition: Returns the new RecordingSession, or ErrAlreadyRecording
// (with the existing session) if one is active. The existing session is
// never replaced on conflict.
func (m *MediaState) StartRecording(spaceID, userID, nickname string, startedAt int64) (RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.recordings[spaceID]; ok && existing.IsRecording {
		return existing, ErrAlreadyRecording
	}

	rec := RecordingSession{
		IsRecording:      true,
		RecorderID:       userID,
		RecorderNickname: nickname,
		StartedAt:        startedAt,
	}
	m.recordings[spaceID] = rec
	return rec, nil
}

// StopRecording ends the space's recording session. Only the recorder or a
// staff actor may stop it.
//
// Postcondition: Returns the stopped snapshot (IsRecording=false), or
// ErrNotRecording / ErrNotRecorder without mutating state.
func (m *MediaState) StopRecording(spaceID, userID string, isStaff bool) (RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.recordings[spaceID]
	if !ok || !existing.IsRecording {
		return RecordingSession{}, ErrNotRecording
	}
	if existing.RecorderID != userID && !isStaff {
		return RecordingSession{}, ErrNotRecorder
	}

	delete(m.recordings, spaceID)
	existing.IsRecording = false
	return existing, nil
}

// Recording returns the space's active recording session, if any.
func (m *MediaState) Recording(spaceID string) (RecordingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[spaceID]
	return rec, ok
}

// ActivateSpotlight mirrors an activated grant into memory.
func (m *MediaState) ActivateSpotlight(spaceID, userID, nickname string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spotlights[spaceID] == nil {
		m.spotlights[spaceID] = make(map[string]Spotlight)
	}
	m.spotlights[spaceID][userID] = Spotlight{ParticipantID: userID, Nickname: nickname}
}

// DeactivateSpotlight clears the user's in-memory spotlight entry.
func (m *MediaState) DeactivateSpotlight(spaceID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entries, ok := m.spotlights[spaceID]; ok {
		delete(entries, userID)
		if len(entries) == 0 {
			delete(m.spotlights, spaceID)
		}
	}
}

// Spotlights returns the active spotlight entries for the space.
func (m *MediaState) Spotlights(spaceID string) []Spotlight {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.spotlights[spaceID]
	out := make([]Spotlight, 0, len(entries))
	for _, s := range entries {
		out = append(out, s)
	}
	return out
}

// SetProximity sets the space's proximity-mode flag.
func (m *MediaState) SetProximity(spaceID string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proximity[spaceID] = enabled
}

// Proximity returns the space's proximity-mode flag. Default is false
// (global mode).
func (m *MediaState) Proximity(spaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proximity[spaceID]
}

// ClearSpace drops all media state for a space, typically once it empties.
func (m *MediaState) ClearSpace(spaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recordings, spaceID)
	delete(m.spotlights, spaceID)
	delete(m.proximity, spaceID)
}

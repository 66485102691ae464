package model

import (
	"time"

	"avatar-therapy-chat/internal/domain"
)

type SessionWarning string

const (
	SessionWarningNone     SessionWarning = "none"
	SessionWarningTime     SessionWarning = "time"
	SessionWarningMessages SessionWarning = "messages"
)

const (
	// Soft warning thresholds surfaced to the UI.
	SessionWarnMinutes  = 25
	SessionWarnMessages = 25

	// Hard limits that close the session.
	SessionMaxMinutes  = 30
	SessionMaxMessages = 30

	// The time progress bar has always normalized against a 60 minute window
	// even though sessions close at 30 minutes. Both numbers ship as-is.
	SessionProgressWindowMinutes = 60
)

// TherapySession is one bounded, billable span of conversation between a user
// and an avatar persona.
type TherapySession struct {
	ID             string
	UserID         string
	ConversationID string
	AvatarID       string
	SessionType    string
	StartTime      time.Time
	LastActivity   time.Time
	EndTime        *time.Time
	MessageCount   int
	CreditCharged  bool
	IsActive       bool
	Metadata       map[string]string
}

func NewTherapySession(id, userID, conversationID, avatarID string) (*TherapySession, error) {
	if id == "" || userID == "" || conversationID == "" || avatarID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &TherapySession{
		ID:             id,
		UserID:         userID,
		ConversationID: conversationID,
		AvatarID:       avatarID,
		SessionType:    "therapy",
		StartTime:      now,
		LastActivity:   now,
		MessageCount:   0,
		CreditCharged:  false,
		IsActive:       true,
		Metadata:       map[string]string{},
	}, nil
}

// DurationMinutes is derived from the wall clock while the session is active
// and frozen at EndTime once it is not.
func (s *TherapySession) DurationMinutes(now time.Time) int {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// RecordMessage advances the counters for one user message.
func (s *TherapySession) RecordMessage(now time.Time) error {
	if !s.IsActive {
		return domain.ErrSessionEnded
	}
	s.MessageCount++
	s.LastActivity = now
	return nil
}

// MarkCharged flips the at-most-once billing flag. Returns false when the
// session was already charged.
func (s *TherapySession) MarkCharged() bool {
	if s.CreditCharged {
		return false
	}
	s.CreditCharged = true
	return true
}

// ShouldEnd reports whether a hard limit has been reached.
func (s *TherapySession) ShouldEnd(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return s.DurationMinutes(now) >= SessionMaxMinutes || s.MessageCount >= SessionMaxMessages
}

// End closes the session. Idempotent: ending an ended session is a no-op and
// reports false.
func (s *TherapySession) End(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	end := now
	s.EndTime = &end
	return true
}

// Warning is a read-only UI signal, never stored. The warning type names
// whichever threshold is closer to its hard limit.
func (s *TherapySession) Warning(now time.Time) (bool, SessionWarning) {
	if !s.IsActive {
		return false, SessionWarningNone
	}
	dur := s.DurationMinutes(now)
	if dur < SessionWarnMinutes && s.MessageCount < SessionWarnMessages {
		return false, SessionWarningNone
	}
	remainingMsgs := SessionMaxMessages - s.MessageCount
	remainingMins := SessionMaxMinutes - dur
	if remainingMsgs <= remainingMins {
		return true, SessionWarningMessages
	}
	return true, SessionWarningTime
}

// SessionProgress is the projection consumed by progress bars.
type SessionProgress struct {
	TimePercent       float64
	MessagePercent    float64
	RemainingMinutes  int
	RemainingMessages int
}

func (s *TherapySession) Progress(now time.Time) SessionProgress {
	dur := s.DurationMinutes(now)
	tp := float64(dur) / float64(SessionProgressWindowMinutes)
	if tp > 1 {
		tp = 1
	}
	mp := float64(s.MessageCount) / float64(SessionMaxMessages)
	if mp > 1 {
		mp = 1
	}
	remMin := SessionProgressWindowMinutes - dur
	if remMin < 0 {
		remMin = 0
	}
	remMsg := SessionMaxMessages - s.MessageCount
	if remMsg < 0 {
		remMsg = 0
	}
	return SessionProgress{
		TimePercent:       tp * 100,
		MessagePercent:    mp * 100,
		RemainingMinutes:  remMin,
		RemainingMessages: remMsg,
	}
}

// SessionUsage is the snapshot handed back to clients after each turn.
type SessionUsage struct {
	SessionID       string  `json:"session_id"`
	MessageCount    int     `json:"message_count"`
	DurationMinutes int     `json:"duration_minutes"`
	CreditCharged   bool    `json:"credit_charged"`
	IsActive        bool    `json:"is_active"`
	Warning         bool    `json:"warning"`
	WarningType     SessionWarning `json:"warning_type"`
	Progress        SessionProgress `json:"progress"`
}

func (s *TherapySession) Usage(now time.Time) SessionUsage {
	warn, wt := s.Warning(now)
	return SessionUsage{
		SessionID:       s.ID,
		MessageCount:    s.MessageCount,
		DurationMinutes: s.DurationMinutes(now),
		CreditCharged:   s.CreditCharged,
		IsActive:        s.IsActive,
		Warning:         warn,
		WarningType:     wt,
		Progress:        s.Progress(now),
	}
}

package model

import (
	"errors"
	"testing"
	"time"

	"avatar-therapy-chat/internal/domain"
)

func newTestSession(t *testing.T) *TherapySession {
	t.Helper()
	s, err := NewTherapySession("sess-1", "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("NewTherapySession: %v", err)
	}
	return s
}

func TestNewTherapySessionValidation(t *testing.T) {
	cases := [][4]string{
		{"", "u", "c", "a"},
		{"s", "", "c", "a"},
		{"s", "u", "", "a"},
		{"s", "u", "c", ""},
	}
	for _, c := range cases {
		if _, err := NewTherapySession(c[0], c[1], c[2], c[3]); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("NewTherapySession(%q,%q,%q,%q) err = %v, want ErrInvalidArgument", c[0], c[1], c[2], c[3], err)
		}
	}
	s := newTestSession(t)
	if !s.IsActive || s.CreditCharged || s.MessageCount != 0 {
		t.Errorf("fresh session state wrong: %+v", s)
	}
	if s.SessionType != "therapy" {
		t.Errorf("session type = %q", s.SessionType)
	}
}

func TestRecordMessageOnEndedSession(t *testing.T) {
	s := newTestSession(t)
	now := s.StartTime.Add(time.Minute)
	s.End(now)
	if err := s.RecordMessage(now); !errors.Is(err, domain.ErrSessionEnded) {
		t.Errorf("RecordMessage after end err = %v, want ErrSessionEnded", err)
	}
}

func TestMarkChargedOnce(t *testing.T) {
	s := newTestSession(t)
	if !s.MarkCharged() {
		t.Fatal("first MarkCharged should report true")
	}
	if s.MarkCharged() {
		t.Fatal("second MarkCharged should report false")
	}
}

func TestWarningThresholds(t *testing.T) {
	s := newTestSession(t)
	now := s.StartTime

	// Below both soft thresholds: quiet.
	s.MessageCount = 24
	if warn, _ := s.Warning(now.Add(24 * time.Minute)); warn {
		t.Error("no warning expected below both thresholds")
	}

	// Message count at the soft threshold, clock well behind: the message
	// limit is the closer one.
	s.MessageCount = 27
	warn, wt := s.Warning(now.Add(10 * time.Minute))
	if !warn || wt != SessionWarningMessages {
		t.Errorf("warn=%v type=%v, want messages warning", warn, wt)
	}

	// Clock past the soft threshold, few messages: time warning.
	s.MessageCount = 3
	warn, wt = s.Warning(now.Add(26 * time.Minute))
	if !warn || wt != SessionWarningTime {
		t.Errorf("warn=%v type=%v, want time warning", warn, wt)
	}

	// Ended sessions never warn.
	s.End(now.Add(26 * time.Minute))
	if warn, _ := s.Warning(now.Add(26 * time.Minute)); warn {
		t.Error("ended session should not warn")
	}
}

func TestShouldEndHardLimits(t *testing.T) {
	s := newTestSession(t)
	now := s.StartTime

	if s.ShouldEnd(now.Add(29 * time.Minute)) {
		t.Error("29 minutes should not end the session")
	}
	if !s.ShouldEnd(now.Add(30 * time.Minute)) {
		t.Error("30 minutes should end the session")
	}

	s2 := newTestSession(t)
	s2.MessageCount = SessionMaxMessages
	if !s2.ShouldEnd(now) {
		t.Error("30 messages should end the session")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	end := s.StartTime.Add(5 * time.Minute)
	if !s.End(end) {
		t.Fatal("first End should report true")
	}
	first := *s.EndTime
	if s.End(end.Add(time.Hour)) {
		t.Fatal("second End should report false")
	}
	if !s.EndTime.Equal(first) {
		t.Error("second End must not move EndTime")
	}
	if s.DurationMinutes(end.Add(24*time.Hour)) != 5 {
		t.Errorf("duration frozen at end: got %d, want 5", s.DurationMinutes(end.Add(24*time.Hour)))
	}
}

func TestProgressNormalization(t *testing.T) {
	s := newTestSession(t)
	s.MessageCount = 15
	p := s.Progress(s.StartTime.Add(15 * time.Minute))

	// The time bar normalizes against the 60 minute display window.
	if p.TimePercent != 25 {
		t.Errorf("TimePercent = %v, want 25", p.TimePercent)
	}
	if p.MessagePercent != 50 {
		t.Errorf("MessagePercent = %v, want 50", p.MessagePercent)
	}
	if p.RemainingMinutes != 45 {
		t.Errorf("RemainingMinutes = %d, want 45", p.RemainingMinutes)
	}
	if p.RemainingMessages != 15 {
		t.Errorf("RemainingMessages = %d, want 15", p.RemainingMessages)
	}

	// Far past every limit the bars clamp instead of overflowing.
	s.MessageCount = 99
	p = s.Progress(s.StartTime.Add(3 * time.Hour))
	if p.TimePercent != 100 || p.MessagePercent != 100 {
		t.Errorf("clamped percents = %v/%v, want 100/100", p.TimePercent, p.MessagePercent)
	}
	if p.RemainingMinutes != 0 || p.RemainingMessages != 0 {
		t.Errorf("clamped remainders = %d/%d, want 0/0", p.RemainingMinutes, p.RemainingMessages)
	}
}

func TestUsageSnapshot(t *testing.T) {
	s := newTestSession(t)
	s.MessageCount = 27
	s.CreditCharged = true
	now := s.StartTime.Add(10 * time.Minute)

	u := s.Usage(now)
	if u.SessionID != s.ID || u.MessageCount != 27 || !u.CreditCharged || !u.IsActive {
		t.Errorf("usage snapshot wrong: %+v", u)
	}
	if !u.Warning || u.WarningType != SessionWarningMessages {
		t.Errorf("usage warning = %v/%v, want messages warning", u.Warning, u.WarningType)
	}
	if u.DurationMinutes != 10 {
		t.Errorf("usage duration = %d, want 10", u.DurationMinutes)
	}
}

package markethours

import (
	"testing"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
)

func newTestService(at time.Time) *Service {
	s := NewService(common.NewSilentLogger())
	s.now = func() time.Time { return at }
	return s
}

// utc is a shorthand for building UTC instants.
func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestIsMarketOpen_USSession(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time // UTC
		want bool
	}{
		// 2026-08-26 is a Wednesday; New York is UTC-4 in August.
		{"midday", utc(2026, 8, 26, 16, 0), true},
		{"before open", utc(2026, 8, 26, 13, 0), false},
		{"at open", utc(2026, 8, 26, 13, 30), true},
		{"at close", utc(2026, 8, 26, 20, 0), true},
		{"after close", utc(2026, 8, 26, 20, 1), false},
		{"saturday", utc(2026, 8, 29, 16, 0), false},
		{"sunday", utc(2026, 8, 30, 16, 0), false},
	}
	for _, tc := range cases {
		s := newTestService(tc.at)
		if got := s.IsMarketOpen("US"); got != tc.want {
			t.Errorf("%s: IsMarketOpen(US) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsMarketOpen_UnknownExchangeFollowsUS(t *testing.T) {
	at := utc(2026, 8, 26, 16, 0) // Wednesday midday in New York
	s := newTestService(at)
	if !s.IsMarketOpen("XX") {
		t.Errorf("unknown exchange should follow the US session")
	}
	if !s.IsMarketOpen("") {
		t.Errorf("empty exchange should follow the US session")
	}
}

func TestIsMarketOpen_AustralianSession(t *testing.T) {
	// Sydney is UTC+10 in August. Midday Wednesday in Sydney is 02:00 UTC.
	s := newTestService(utc(2026, 8, 26, 2, 0))
	if !s.IsMarketOpen("ASX") {
		t.Errorf("ASX should be open midday Sydney time")
	}
	// The same instant is Tuesday evening in New York: US closed.
	if s.IsMarketOpen("US") {
		t.Errorf("US should be closed at 02:00 UTC")
	}
}

func TestIsMarketOpen_CaseAndWhitespaceNormalized(t *testing.T) {
	s := newTestService(utc(2026, 8, 26, 16, 0))
	if !s.IsMarketOpen(" nasdaq ") {
		t.Errorf("exchange codes should be normalized before lookup")
	}
}

func TestIsMarketOpen_LondonSession(t *testing.T) {
	// London is UTC+1 in August; the session runs 08:00-16:30 local.
	if s := newTestService(utc(2026, 8, 26, 9, 0)); !s.IsMarketOpen("LSE") {
		t.Errorf("LSE should be open at 10:00 London time")
	}
	if s := newTestService(utc(2026, 8, 26, 16, 0)); s.IsMarketOpen("LSE") {
		t.Errorf("LSE should be closed at 17:00 London time")
	}
}

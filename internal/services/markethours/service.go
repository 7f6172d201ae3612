// Package markethours answers "is this exchange currently trading" from a
// static session table. Sessions are regular cash-market hours; holidays are
// not modeled, so a holiday reads as open and simply costs one wasted scan.
package markethours

import (
	"strings"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
)

// session describes one exchange's regular trading window in local time.
type session struct {
	tz        string
	openMins  int // minutes from midnight
	closeMins int
}

// sessions maps exchange codes to their regular cash sessions.
var sessions = map[string]session{
	"US":     {tz: "America/New_York", openMins: 9*60 + 30, closeMins: 16 * 60},
	"NYSE":   {tz: "America/New_York", openMins: 9*60 + 30, closeMins: 16 * 60},
	"NASDAQ": {tz: "America/New_York", openMins: 9*60 + 30, closeMins: 16 * 60},
	"TO":     {tz: "America/Toronto", openMins: 9*60 + 30, closeMins: 16 * 60},
	"LSE":    {tz: "Europe/London", openMins: 8 * 60, closeMins: 16*60 + 30},
	"F":      {tz: "Europe/Berlin", openMins: 9 * 60, closeMins: 17*60 + 30},
	"PA":     {tz: "Europe/Paris", openMins: 9 * 60, closeMins: 17*60 + 30},
	"AU":     {tz: "Australia/Sydney", openMins: 10 * 60, closeMins: 16*60 + 30},
	"ASX":    {tz: "Australia/Sydney", openMins: 10 * 60, closeMins: 16*60 + 30},
	"T":      {tz: "Asia/Tokyo", openMins: 9 * 60, closeMins: 15 * 60},
	"HK":     {tz: "Asia/Hong_Kong", openMins: 9*60 + 30, closeMins: 16 * 60},
}

// Service implements the MarketHours interface.
type Service struct {
	logger *common.Logger
	now    func() time.Time // injectable clock for testing

	locations map[string]*time.Location
}

// NewService creates a market hours service, resolving all session
// timezones up front.
func NewService(logger *common.Logger) *Service {
	s := &Service{
		logger:    logger,
		now:       time.Now,
		locations: make(map[string]*time.Location),
	}
	for code, sess := range sessions {
		loc, err := time.LoadLocation(sess.tz)
		if err != nil {
			logger.Warn().Str("exchange", code).Str("tz", sess.tz).Msg("Timezone unavailable, using UTC")
			loc = time.UTC
		}
		s.locations[code] = loc
	}
	return s
}

// IsMarketOpen reports whether the exchange is inside its regular session.
// Unknown exchanges follow the US session, the most common case for
// instruments added without an explicit exchange.
func (s *Service) IsMarketOpen(exchange string) bool {
	code := strings.ToUpper(strings.TrimSpace(exchange))
	sess, ok := sessions[code]
	if !ok {
		code = "US"
		sess = sessions[code]
	}

	local := s.now().In(s.locations[code])
	weekday := local.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return false
	}

	hour, min, _ := local.Clock()
	minuteOfDay := hour*60 + min
	return minuteOfDay >= sess.openMins && minuteOfDay <= sess.closeMins
}

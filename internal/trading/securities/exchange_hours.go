package securities

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// SessionKind distinguishes regular from extended trading sessions.
type SessionKind string

const (
	SessionPreMarket  SessionKind = "premarket"
	SessionMarket     SessionKind = "market"
	SessionPostMarket SessionKind = "postmarket"
)

// Session is one trading segment of a day, as offsets from local midnight.
type Session struct {
	Kind  SessionKind
	Start time.Duration
	End   time.Duration
}

func (s Session) contains(offset time.Duration, extended bool) bool {
	if s.Kind != SessionMarket && !extended {
		return false
	}
	return offset >= s.Start && offset < s.End
}

// ErrNoMarketSession is returned when no session is found within the search horizon.
var ErrNoMarketSession = errors.New("no market session within search horizon")

const searchHorizonDays = 30

// ExchangeHours is the trading calendar of one exchange.
type ExchangeHours struct {
	Location    *time.Location
	Days        map[time.Weekday][]Session
	Holidays    map[string]struct{}
	EarlyCloses map[string]time.Duration
	alwaysOpen  bool
}

// AlwaysOpen returns a calendar that trades around the clock (crypto, forex venues).
func AlwaysOpen(loc *time.Location) *ExchangeHours {
	if loc == nil {
		loc = time.UTC
	}
	return &ExchangeHours{Location: loc, alwaysOpen: true}
}

// NewExchangeHours builds a calendar with the same sessions every weekday.
func NewExchangeHours(loc *time.Location, sessions []Session, holidays []time.Time) *ExchangeHours {
	if loc == nil {
		loc = time.UTC
	}
	eh := &ExchangeHours{
		Location:    loc,
		Days:        make(map[time.Weekday][]Session),
		Holidays:    make(map[string]struct{}),
		EarlyCloses: make(map[string]time.Duration),
	}
	sorted := append([]Session(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for d := time.Monday; d <= time.Friday; d++ {
		eh.Days[d] = sorted
	}
	for _, h := range holidays {
		eh.Holidays[dateKey(h)] = struct{}{}
	}
	return eh
}

// USEquityHours is the NYSE calendar with pre and post market sessions.
func USEquityHours() *ExchangeHours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	return NewExchangeHours(loc, []Session{
		{Kind: SessionPreMarket, Start: 4 * time.Hour, End: 9*time.Hour + 30*time.Minute},
		{Kind: SessionMarket, Start: 9*time.Hour + 30*time.Minute, End: 16 * time.Hour},
		{Kind: SessionPostMarket, Start: 16 * time.Hour, End: 20 * time.Hour},
	}, nil)
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// at returns the wall clock time offset from midnight of day, stable across DST changes.
func at(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	h := offset / time.Hour
	offset -= h * time.Hour
	mi := offset / time.Minute
	offset -= mi * time.Minute
	return time.Date(y, m, d, int(h), int(mi), 0, int(offset), day.Location())
}

// clockOffset is the wall clock time of day of t.
func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

// Local converts t into the exchange time zone.
func (eh *ExchangeHours) Local(t time.Time) time.Time {
	return t.In(eh.Location)
}

// sessionsOn returns the sessions of the local date, honoring holidays and early closes.
func (eh *ExchangeHours) sessionsOn(localDate time.Time) []Session {
	key := dateKey(localDate)
	if _, ok := eh.Holidays[key]; ok {
		return nil
	}
	sessions := eh.Days[localDate.Weekday()]
	early, ok := eh.EarlyCloses[key]
	if !ok {
		return sessions
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Start >= early {
			continue
		}
		if s.End > early {
			s.End = early
		}
		out = append(out, s)
	}
	return out
}

// IsOpen reports whether the exchange trades at t.
func (eh *ExchangeHours) IsOpen(t time.Time, extended bool) bool {
	if eh.alwaysOpen {
		return true
	}
	local := eh.Local(t)
	offset := clockOffset(local)
	for _, s := range eh.sessionsOn(local) {
		if s.contains(offset, extended) {
			return true
		}
	}
	return false
}

// IsOpenDuring reports whether any part of [start, end) falls in a session.
func (eh *ExchangeHours) IsOpenDuring(start, end time.Time, extended bool) bool {
	if eh.alwaysOpen {
		return true
	}
	if !end.After(start) {
		return eh.IsOpen(start, extended)
	}
	localStart, localEnd := eh.Local(start), eh.Local(end)
	for day := midnight(localStart); day.Before(localEnd); day = day.AddDate(0, 0, 1) {
		for _, s := range eh.sessionsOn(day) {
			if s.Kind != SessionMarket && !extended {
				continue
			}
			segStart, segEnd := at(day, s.Start), at(day, s.End)
			if segStart.Before(localEnd) && segEnd.After(localStart) {
				return true
			}
		}
	}
	return false
}

// IsDateOpen reports whether the local date has a regular session.
func (eh *ExchangeHours) IsDateOpen(t time.Time) bool {
	if eh.alwaysOpen {
		return true
	}
	for _, s := range eh.sessionsOn(eh.Local(t)) {
		if s.Kind == SessionMarket {
			return true
		}
	}
	return false
}

// NextMarketClose returns the first session end strictly after t.
func (eh *ExchangeHours) NextMarketClose(t time.Time, extended bool) (time.Time, error) {
	if eh.alwaysOpen {
		return time.Time{}, fmt.Errorf("exchange never closes: %w", ErrNoMarketSession)
	}
	local := eh.Local(t)
	day := midnight(local)
	for i := 0; i < searchHorizonDays; i++ {
		for _, s := range eh.sessionsOn(day) {
			if s.Kind != SessionMarket && !extended {
				continue
			}
			end := at(day, s.End)
			if end.After(local) {
				return end, nil
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoMarketSession
}

// NextMarketOpen returns the first session start strictly after t.
func (eh *ExchangeHours) NextMarketOpen(t time.Time, extended bool) (time.Time, error) {
	if eh.alwaysOpen {
		return t, nil
	}
	local := eh.Local(t)
	day := midnight(local)
	for i := 0; i < searchHorizonDays; i++ {
		for _, s := range eh.sessionsOn(day) {
			if s.Kind != SessionMarket && !extended {
				continue
			}
			start := at(day, s.Start)
			if start.After(local) {
				return start, nil
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoMarketSession
}

// MarketOpen returns the regular session open of the local date of t.
func (eh *ExchangeHours) MarketOpen(t time.Time) (time.Time, bool) {
	local := eh.Local(t)
	day := midnight(local)
	for _, s := range eh.sessionsOn(day) {
		if s.Kind == SessionMarket {
			return at(day, s.Start), true
		}
	}
	return time.Time{}, false
}

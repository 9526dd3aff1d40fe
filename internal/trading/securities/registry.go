package securities

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RegistryFile is the YAML layout of a securities file.
type RegistryFile struct {
	Exchanges  map[string]ExchangeSpec `yaml:"exchanges"`
	Securities []SecuritySpec          `yaml:"securities"`
}

type SessionSpec struct {
	Kind  SessionKind `yaml:"kind"`
	Start string      `yaml:"start"`
	End   string      `yaml:"end"`
}

type ExchangeSpec struct {
	TimeZone    string            `yaml:"timezone"`
	AlwaysOpen  bool              `yaml:"always_open"`
	Sessions    []SessionSpec     `yaml:"sessions"`
	Holidays    []string          `yaml:"holidays"`
	EarlyCloses map[string]string `yaml:"early_closes"`
}

type OptionSpec struct {
	Underlying string      `yaml:"underlying"`
	Right      OptionRight `yaml:"right"`
	Strike     string      `yaml:"strike"`
	Expiry     string      `yaml:"expiry"`
}

type SecuritySpec struct {
	Symbol                string                `yaml:"symbol"`
	Type                  SecurityType          `yaml:"type"`
	Exchange              string                `yaml:"exchange"`
	PrimaryExchange       string                `yaml:"primary_exchange"`
	ExtendedHours         bool                  `yaml:"extended_hours"`
	LotSize               string                `yaml:"lot_size"`
	MinimumPriceVariation string                `yaml:"min_price_variation"`
	ContractMultiplier    string                `yaml:"contract_multiplier"`
	QuoteCurrency         string                `yaml:"quote_currency"`
	Subscriptions         []marketdata.DataType `yaml:"subscriptions"`
	Option                *OptionSpec           `yaml:"option"`
}

// LoadFile reads a YAML securities file into a new Manager.
func LoadFile(path string) (*Manager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read securities file: %w", err)
	}
	return Load(raw)
}

// Load parses YAML securities definitions.
func Load(raw []byte) (*Manager, error) {
	var file RegistryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse securities yaml: %w", err)
	}

	exchanges := make(map[string]*ExchangeHours, len(file.Exchanges))
	for name, spec := range file.Exchanges {
		eh, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", name, err)
		}
		exchanges[name] = eh
	}

	m := NewManager()
	for _, spec := range file.Securities {
		sec, err := spec.build(exchanges)
		if err != nil {
			return nil, fmt.Errorf("security %s: %w", spec.Symbol, err)
		}
		m.Add(sec)
	}
	return m, nil
}

func (spec ExchangeSpec) build() (*ExchangeHours, error) {
	loc := time.UTC
	if spec.TimeZone != "" {
		l, err := time.LoadLocation(spec.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", spec.TimeZone, err)
		}
		loc = l
	}
	if spec.AlwaysOpen {
		return AlwaysOpen(loc), nil
	}

	sessions := make([]Session, 0, len(spec.Sessions))
	for _, s := range spec.Sessions {
		start, err := parseClock(s.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(s.End)
		if err != nil {
			return nil, err
		}
		kind := s.Kind
		if kind == "" {
			kind = SessionMarket
		}
		sessions = append(sessions, Session{Kind: kind, Start: start, End: end})
	}

	holidays := make([]time.Time, 0, len(spec.Holidays))
	for _, h := range spec.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h, loc)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		holidays = append(holidays, d)
	}

	eh := NewExchangeHours(loc, sessions, holidays)
	for date, closeAt := range spec.EarlyCloses {
		at, err := parseClock(closeAt)
		if err != nil {
			return nil, err
		}
		eh.EarlyCloses[date] = at
	}
	return eh, nil
}

func (spec SecuritySpec) build(exchanges map[string]*ExchangeHours) (*Security, error) {
	if spec.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	eh := AlwaysOpen(time.UTC)
	if spec.Exchange != "" {
		var ok bool
		if eh, ok = exchanges[spec.Exchange]; !ok {
			return nil, fmt.Errorf("unknown exchange %q", spec.Exchange)
		}
	}

	props := DefaultSymbolProperties()
	var err error
	if props.LotSize, err = decimalOr(spec.LotSize, props.LotSize); err != nil {
		return nil, err
	}
	if props.MinimumPriceVariation, err = decimalOr(spec.MinimumPriceVariation, props.MinimumPriceVariation); err != nil {
		return nil, err
	}
	if props.ContractMultiplier, err = decimalOr(spec.ContractMultiplier, props.ContractMultiplier); err != nil {
		return nil, err
	}
	if spec.QuoteCurrency != "" {
		props.QuoteCurrency = spec.QuoteCurrency
	}
	if !props.LotSize.IsPositive() || !props.MinimumPriceVariation.IsPositive() {
		return nil, fmt.Errorf("lot size and minimum price variation must be positive")
	}

	typ := spec.Type
	if typ == "" {
		typ = TypeEquity
	}
	sec := New(spec.Symbol, typ, props, eh, spec.Subscriptions...)
	sec.PrimaryExchange = spec.PrimaryExchange
	sec.ExtendedHours = spec.ExtendedHours

	if spec.Option != nil {
		strike, err := decimal.NewFromString(spec.Option.Strike)
		if err != nil {
			return nil, fmt.Errorf("option strike: %w", err)
		}
		expiry, err := time.ParseInLocation("2006-01-02", spec.Option.Expiry, eh.Location)
		if err != nil {
			return nil, fmt.Errorf("option expiry: %w", err)
		}
		sec.Option = &OptionContract{
			Underlying: spec.Option.Underlying,
			Right:      OptionRight(strings.ToLower(string(spec.Option.Right))),
			Strike:     strike,
			Expiry:     expiry,
		}
	}
	return sec, nil
}

func decimalOr(s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// parseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

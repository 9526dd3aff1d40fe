package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// TriggerState is the sub-state of two-phase orders (stop-limit and
// limit-if-touched). Once Armed it never returns to Unarmed.
type TriggerState int

const (
	Unarmed TriggerState = iota
	Armed
)

func (s TriggerState) String() string {
	if s == Armed {
		return "armed"
	}
	return "unarmed"
}

// Terms is the type-specific part of an order. Exactly one concrete variant
// is attached to every order.
type Terms interface {
	Type() OrderType
	Clone() Terms
}

type MarketTerms struct{}

func (*MarketTerms) Type() OrderType { return OrderTypeMarket }
func (t *MarketTerms) Clone() Terms  { c := *t; return &c }

type LimitTerms struct {
	LimitPrice decimal.Decimal `json:"limit_price"`
}

func (*LimitTerms) Type() OrderType { return OrderTypeLimit }
func (t *LimitTerms) Clone() Terms  { c := *t; return &c }

type StopMarketTerms struct {
	StopPrice decimal.Decimal `json:"stop_price"`
}

func (*StopMarketTerms) Type() OrderType { return OrderTypeStopMarket }
func (t *StopMarketTerms) Clone() Terms  { c := *t; return &c }

// StopLimitTerms arms once the stop is crossed and then behaves as a limit.
type StopLimitTerms struct {
	StopPrice  decimal.Decimal `json:"stop_price"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	Trigger    TriggerState    `json:"trigger"`
}

func (*StopLimitTerms) Type() OrderType { return OrderTypeStopLimit }
func (t *StopLimitTerms) Clone() Terms  { c := *t; return &c }

// LimitIfTouchedTerms arms once the trigger is touched and then requires the
// quote to satisfy the limit.
type LimitIfTouchedTerms struct {
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	Trigger      TriggerState    `json:"trigger"`
}

func (*LimitIfTouchedTerms) Type() OrderType { return OrderTypeLimitIfTouched }
func (t *LimitIfTouchedTerms) Clone() Terms  { c := *t; return &c }

type MarketOnOpenTerms struct{}

func (*MarketOnOpenTerms) Type() OrderType { return OrderTypeMarketOnOpen }
func (t *MarketOnOpenTerms) Clone() Terms  { c := *t; return &c }

type MarketOnCloseTerms struct{}

func (*MarketOnCloseTerms) Type() OrderType { return OrderTypeMarketOnClose }
func (t *MarketOnCloseTerms) Clone() Terms  { c := *t; return &c }

type OptionExerciseTerms struct{}

func (*OptionExerciseTerms) Type() OrderType { return OrderTypeOptionExercise }
func (t *OptionExerciseTerms) Clone() Terms  { c := *t; return &c }

type LiquidationTerms struct{}

func (*LiquidationTerms) Type() OrderType { return OrderTypeLiquidation }
func (t *LiquidationTerms) Clone() Terms  { c := *t; return &c }

// TermsSpec is the flat wire form of Terms used by the HTTP API and the
// request journal.
type TermsSpec struct {
	Type         OrderType       `json:"type"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty"`
}

// Build converts the flat form into the matching variant.
func (s TermsSpec) Build() (Terms, error) {
	switch s.Type {
	case OrderTypeMarket, "":
		return &MarketTerms{}, nil
	case OrderTypeLimit:
		return &LimitTerms{LimitPrice: s.LimitPrice}, nil
	case OrderTypeStopMarket:
		return &StopMarketTerms{StopPrice: s.StopPrice}, nil
	case OrderTypeStopLimit:
		return &StopLimitTerms{StopPrice: s.StopPrice, LimitPrice: s.LimitPrice}, nil
	case OrderTypeLimitIfTouched:
		return &LimitIfTouchedTerms{TriggerPrice: s.TriggerPrice, LimitPrice: s.LimitPrice}, nil
	case OrderTypeMarketOnOpen:
		return &MarketOnOpenTerms{}, nil
	case OrderTypeMarketOnClose:
		return &MarketOnCloseTerms{}, nil
	case OrderTypeOptionExercise:
		return &OptionExerciseTerms{}, nil
	case OrderTypeLiquidation:
		return &LiquidationTerms{}, nil
	}
	return nil, fmt.Errorf("unknown order type %q", s.Type)
}

// SpecOf flattens a terms variant.
func SpecOf(t Terms) TermsSpec {
	spec := TermsSpec{Type: OrderTypeMarket}
	if t == nil {
		return spec
	}
	spec.Type = t.Type()
	switch v := t.(type) {
	case *LimitTerms:
		spec.LimitPrice = v.LimitPrice
	case *StopMarketTerms:
		spec.StopPrice = v.StopPrice
	case *StopLimitTerms:
		spec.StopPrice, spec.LimitPrice = v.StopPrice, v.LimitPrice
	case *LimitIfTouchedTerms:
		spec.TriggerPrice, spec.LimitPrice = v.TriggerPrice, v.LimitPrice
	}
	return spec
}

// MarshalJSON renders the order with its terms flattened alongside.
func (o *Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		*alias
		Type      OrderType `json:"type"`
		Direction Direction `json:"direction"`
		Terms     TermsSpec `json:"terms"`
	}{alias: (*alias)(o), Type: o.Type(), Direction: o.Direction(), Terms: SpecOf(o.Terms)})
}

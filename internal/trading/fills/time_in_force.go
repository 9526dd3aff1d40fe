package fills

import (
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
)

// IsExpired reports whether the order's time in force has lapsed at now.
func IsExpired(sec *securities.Security, order *model.Order, now time.Time) bool {
	local := sec.LocalTime(now)
	orderLocal := sec.LocalTime(order.Time)

	switch order.TimeInForce.Kind {
	case model.TimeInForceDay:
		if sec.Type == securities.TypeCrypto || sec.Type == securities.TypeForex {
			return !sameDate(local, orderLocal)
		}
		closeAt, err := sec.Exchange.NextMarketClose(orderLocal, false)
		if err != nil {
			return !sameDate(local, orderLocal)
		}
		return !local.Before(closeAt)

	case model.TimeInForceGTD:
		expiry := order.TimeInForce.Expiry.In(sec.Exchange.Location)
		y, m, d := expiry.Date()
		expiryDate := time.Date(y, m, d, 0, 0, 0, 0, sec.Exchange.Location)
		closeAt, err := sec.Exchange.NextMarketClose(expiryDate, false)
		if err != nil || !sameDate(closeAt, expiryDate) {
			// no session that day: expire at the end of the date
			closeAt = expiryDate.AddDate(0, 0, 1)
		}
		return !local.Before(closeAt)
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

package domain

import "strings"

// PromoCatalog maps promo codes to a flat discount in minor currency units.
type PromoCatalog map[string]int64

type Quote struct {
	Subtotal int64
	Discount int64
	Total    int64
}

func (c PromoCatalog) Quote(tier *TicketTier, quantity int, promoCode string) (Quote, error) {
	q := Quote{Subtotal: tier.PriceCents * int64(quantity)}

	code := strings.TrimSpace(promoCode)
	if code != "" {
		discount, ok := c[strings.ToUpper(code)]
		if !ok {
			return Quote{}, ValidationError(ErrInvalidPromoCode, "promo code %q", code)
		}
		q.Discount = min(discount, q.Subtotal)
	}

	q.Total = q.Subtotal - q.Discount
	return q, nil
}

package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/staybook/hotel-reservations/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Amount prices a booking.  The total is Σ(price × rooms) × nights
// computed in fixed-point and converted to integer cents only at the
// end; the platform fee is floor(total × feeRate) in cents.
func Amount(lines []model.PricedLine, stay model.DateRange, feeRate decimal.Decimal) (model.PaymentAmount, error) {
	if err := stay.Validate(); err != nil {
		return model.PaymentAmount{}, err
	}
	nights := stay.Nights()
	if nights < 1 {
		return model.PaymentAmount{}, model.ErrInvalidDateRange
	}
	if feeRate.IsNegative() || feeRate.GreaterThan(decimal.NewFromInt(1)) {
		return model.PaymentAmount{}, fmt.Errorf("%w: fee rate %s out of range", model.ErrValidation, feeRate)
	}

	perNight := decimal.Zero
	for _, l := range lines {
		if l.Rooms < 1 {
			return model.PaymentAmount{}, fmt.Errorf("%w: rooms must be positive", model.ErrInvalidLineItem)
		}
		if !l.RoomType.Price.IsPositive() {
			return model.PaymentAmount{}, fmt.Errorf("%w: room type %s has no price", model.ErrInvalidLineItem, l.RoomType.ID)
		}
		perNight = perNight.Add(l.RoomType.Price.Mul(decimal.NewFromInt(int64(l.Rooms))))
	}
	total := perNight.Mul(decimal.NewFromInt(int64(nights))).Mul(hundred).Floor()
	fee := total.Mul(feeRate).Floor()

	return model.PaymentAmount{
		TotalCents: total.IntPart(),
		FeeCents:   fee.IntPart(),
		Nights:     nights,
	}, nil
}

// PriceReservation joins the lines of r with their room types and prices
// them.  Lines whose room type has since been removed are skipped.
func PriceReservation(r *model.Reservation, rts []model.RoomType, feeRate decimal.Decimal) (model.PaymentAmount, error) {
	byID := make(map[string]model.RoomType, len(rts))
	for _, rt := range rts {
		byID[rt.ID] = rt
	}
	var priced []model.PricedLine
	for _, l := range r.Lines {
		if l.RoomTypeID == nil {
			continue
		}
		rt, ok := byID[*l.RoomTypeID]
		if !ok {
			continue
		}
		priced = append(priced, model.PricedLine{RoomType: rt, Rooms: l.Rooms})
	}
	if len(priced) == 0 {
		return model.PaymentAmount{}, fmt.Errorf("%w: reservation %s has no priced lines", model.ErrInvalidLineItem, r.ID)
	}
	return Amount(priced, r.Stay(), feeRate)
}

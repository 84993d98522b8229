package status

import "coachdesk/internal/models"

// paymentRank orders payment statuses so "never regress" is one comparison.
// A retried payment may move reservation-failed to reservation-paid, but a
// stale provider failure can never clobber a paid or refunded status.
var paymentRank = map[models.PaymentStatus]int{
	models.PaymentUnpaid:              0,
	models.PaymentReservationPending:  10,
	models.PaymentReservationFailed:   20,
	models.PaymentReservationPaid:     30,
	models.PaymentSessionPaid:         40,
	models.PaymentReservationRefunded: 50,
	models.PaymentSessionRefunded:     50,
}

// PaymentRank returns the lattice rank; unknown values rank below everything
// so they can never overwrite a known status.
func PaymentRank(s models.PaymentStatus) int {
	if r, ok := paymentRank[s]; ok {
		return r
	}
	return -1
}

// CanUpgradePayment reports whether writing to is a strict upgrade from from.
func CanUpgradePayment(from, to models.PaymentStatus) bool {
	return PaymentRank(to) > PaymentRank(from)
}

// PaymentSettled reports a terminal payment status that reconciliation must
// never overwrite regardless of what the provider says.
func PaymentSettled(s models.PaymentStatus) bool {
	switch s {
	case models.PaymentSessionPaid, models.PaymentReservationRefunded, models.PaymentSessionRefunded:
		return true
	}
	return false
}

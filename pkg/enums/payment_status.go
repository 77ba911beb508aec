package enums

// PaymentStatus is the processor-side outcome of an order. Only pending may
// change through reconciliation.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return known(p, paymentStatuses) }

func (p PaymentStatus) IsSettled() bool { return p.IsValid() && p != PaymentStatusPending }

// ReservationStatus records whether a line item still holds its stock.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "reserved"
	ReservationReleased ReservationStatus = "released"
)

func (s ReservationStatus) String() string { return string(s) }

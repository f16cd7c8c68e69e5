package enums

// PaymentMethod is how the customer settles: at the counter or online.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "EFECTIVO"
	PaymentMethodCard     PaymentMethod = "TARJETA"
	PaymentMethodTransfer PaymentMethod = "TRANSFERENCIA"
	PaymentMethodWebpay   PaymentMethod = "WEBPAY"
)

var paymentMethods = set[PaymentMethod]{
	PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodWebpay,
}

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

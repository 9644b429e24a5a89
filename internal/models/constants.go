package models

const (
	TableAvailable   = "available"
	TableOccupied    = "occupied"
	TableMaintenance = "maintenance"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

const (
	PaymentMethodCash    = "cash"
	PaymentMethodCard    = "card"
	PaymentMethodEWallet = "e-wallet"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

const (
	// MinReservationMinutes минимальная длительность брони
	MinReservationMinutes = 30

	// DateLayout формат календарной даты промокодов
	DateLayout = "2006-01-02"

	// DefaultIdempotencyTTL время жизни ключа идемпотентности в секундах
	DefaultIdempotencyTTL = 24 * 60 * 60

	// NotificationQueueSize размер очереди уведомлений
	NotificationQueueSize = 1000

	// DefaultMaxAdvanceDays насколько далеко вперед можно бронировать
	DefaultMaxAdvanceDays = 90
)

// IsValidPaymentMethod reports whether m is one of the accepted payment methods.
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodEWallet:
		return true
	default:
		return false
	}
}

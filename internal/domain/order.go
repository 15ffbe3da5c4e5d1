package domain

import "github.com/shopspring/decimal"

type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "delivery"
	DeliveryTypePickup   DeliveryType = "pickup"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentCard   PaymentMethod = "card"
	PaymentTamara PaymentMethod = "tamara"
	PaymentTabby  PaymentMethod = "tabby"
)

// Redirects reports whether the method hands the shopper over to a hosted
// payment page after the order is created.
func (m PaymentMethod) Redirects() bool {
	return m == PaymentCard || m == PaymentTamara || m == PaymentTabby
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m.Redirects()
}

type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
}

type PickupDetails struct {
	StoreID   string `json:"storeId"`
	StoreName string `json:"storeName,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

type GuestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type OrderItem struct {
	Product       string          `json:"product"`
	Name          string          `json:"name"`
	Image         string          `json:"image,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	BundleID      string          `json:"bundleId,omitempty"`
	Variant       Variant         `json:"variant"`
	IsProtection  bool            `json:"isProtection,omitempty"`
	ProtectionFor string          `json:"protectionFor,omitempty"`
}

// OrderSubmission is the payload sent to the order API when checkout completes.
type OrderSubmission struct {
	OrderItems      []OrderItem      `json:"orderItems"`
	ItemsPrice      decimal.Decimal  `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal  `json:"shippingPrice"`
	DiscountAmount  decimal.Decimal  `json:"discountAmount"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
	CouponCode      string           `json:"couponCode,omitempty"`
	DeliveryType    DeliveryType     `json:"deliveryType"`
	DeliveryOption  string           `json:"deliveryOption,omitempty"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PickupDetails   *PickupDetails   `json:"pickupDetails,omitempty"`
	Guest           *GuestInfo       `json:"guestInfo,omitempty"`
	CustomerNotes   string           `json:"customerNotes,omitempty"`
}

type PlacedOrder struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

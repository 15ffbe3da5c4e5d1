// Package checkout drives the three-step checkout: address or pickup,
// summary and notes, then payment.
package checkout

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

type Step int

const (
	StepAddress Step = iota + 1
	StepSummary
	StepPayment
)

func (s Step) String() string {
	switch s {
	case StepAddress:
		return "address"
	case StepSummary:
		return "summary"
	case StepPayment:
		return "payment"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrStepOrder          = errors.New("checkout: action not allowed at this step")
	ErrIncompleteStep     = errors.New("checkout: step is incomplete")
	ErrEmptyCart          = errors.New("checkout: cart is empty")
	ErrMissingRedirectURL = errors.New("checkout: payment provider returned no redirect url")
	ErrUnsupportedPayment = errors.New("checkout: unsupported payment method")
	ErrCartChanged        = errors.New("checkout: cart changed since the payment step was entered")
	ErrPaymentResult      = errors.New("checkout: malformed payment result")
	// ErrUpstream wraps failures of the commerce API.
	ErrUpstream           = errors.New("checkout: commerce api request failed")
)

// IncompleteError lists the fields that keep a step from being completed.
type IncompleteError struct {
	Step   Step
	Fields []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("checkout: %s step is missing %s", e.Step, strings.Join(e.Fields, ", "))
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncompleteStep
}

// Draft is the in-progress checkout of one session.
type Draft struct {
	Step            Step                    `json:"step"`
	DeliveryType    domain.DeliveryType     `json:"deliveryType"`
	ShippingAddress *domain.ShippingAddress `json:"shippingAddress,omitempty"`
	PickupDetails   *domain.PickupDetails   `json:"pickupDetails,omitempty"`
	Guest           *domain.GuestInfo       `json:"guestInfo,omitempty"`
	DeliveryOption  string                  `json:"deliveryOption,omitempty"`
	Notes           string                  `json:"customerNotes,omitempty"`
	// IdempotencyKey is fixed when the payment step is entered so that a
	// resubmitted order reuses it. It is only valid for the cart contents
	// identified by CartFingerprint.
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
	CartFingerprint string `json:"cartFingerprint,omitempty"`
}

func NewDraft() Draft {
	return Draft{Step: StepAddress, DeliveryType: domain.DeliveryTypeDelivery}
}

// Details is what the shopper fills in on the address step.
type Details struct {
	DeliveryType    domain.DeliveryType     `json:"deliveryType"`
	ShippingAddress *domain.ShippingAddress `json:"shippingAddress,omitempty"`
	PickupDetails   *domain.PickupDetails   `json:"pickupDetails,omitempty"`
	Guest           *domain.GuestInfo       `json:"guestInfo,omitempty"`
	DeliveryOption  string                  `json:"deliveryOption,omitempty"`
}

// WithDetails replaces the address step fields. Only legal on that step.
func (d Draft) WithDetails(in Details) (Draft, error) {
	if d.Step != StepAddress {
		return d, fmt.Errorf("%w: details can only change on the %s step", ErrStepOrder, StepAddress)
	}
	switch in.DeliveryType {
	case "":
		in.DeliveryType = domain.DeliveryTypeDelivery
	case domain.DeliveryTypeDelivery, domain.DeliveryTypePickup:
	default:
		return d, &IncompleteError{Step: StepAddress, Fields: []string{"deliveryType"}}
	}
	d.DeliveryType = in.DeliveryType
	d.ShippingAddress = in.ShippingAddress
	d.PickupDetails = in.PickupDetails
	d.Guest = in.Guest
	d.DeliveryOption = strings.TrimSpace(in.DeliveryOption)
	if d.DeliveryType == domain.DeliveryTypePickup {
		d.DeliveryOption = ""
	}
	return d, nil
}

// WithNotes sets the customer notes. Only legal on the summary step.
func (d Draft) WithNotes(notes string) (Draft, error) {
	if d.Step != StepSummary {
		return d, fmt.Errorf("%w: notes can only change on the %s step", ErrStepOrder, StepSummary)
	}
	d.Notes = strings.TrimSpace(notes)
	return d, nil
}

// Continue validates the current step and moves to the next one.
func (d Draft) Continue() (Draft, error) {
	switch d.Step {
	case StepAddress:
		if err := d.validateDetails(); err != nil {
			return d, err
		}
	case StepSummary:
	default:
		return d, fmt.Errorf("%w: cannot continue past the %s step", ErrStepOrder, d.Step)
	}
	d.Step++
	return d, nil
}

// Back returns to the previous step.
func (d Draft) Back() (Draft, error) {
	if d.Step <= StepAddress {
		return d, fmt.Errorf("%w: already on the first step", ErrStepOrder)
	}
	d.Step--
	if d.Step < StepPayment {
		d.IdempotencyKey = ""
		d.CartFingerprint = ""
	}
	return d, nil
}

// Reopen sends a draft on the payment step back to the summary and forgets
// its order key.
func (d Draft) Reopen() Draft {
	if d.Step == StepPayment {
		d.Step = StepSummary
	}
	d.IdempotencyKey = ""
	d.CartFingerprint = ""
	return d
}

func (d Draft) validateDetails() error {
	var missing []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	switch d.DeliveryType {
	case domain.DeliveryTypePickup:
		if d.PickupDetails == nil {
			missing = append(missing, "pickupDetails")
			break
		}
		require("pickupDetails.storeId", d.PickupDetails.StoreID)
		require("pickupDetails.name", d.PickupDetails.Name)
		require("pickupDetails.phone", d.PickupDetails.Phone)
	default:
		if d.ShippingAddress == nil {
			missing = append(missing, "shippingAddress")
		} else {
			a := d.ShippingAddress
			require("shippingAddress.fullName", a.FullName)
			require("shippingAddress.phone", a.Phone)
			require("shippingAddress.address", a.Address)
			require("shippingAddress.city", a.City)
			require("shippingAddress.country", a.Country)
		}
		require("deliveryOption", d.DeliveryOption)
	}

	if d.Guest == nil {
		missing = append(missing, "guestInfo")
	} else {
		require("guestInfo.name", d.Guest.Name)
		require("guestInfo.phone", d.Guest.Phone)
		if _, err := mail.ParseAddress(strings.TrimSpace(d.Guest.Email)); err != nil {
			missing = append(missing, "guestInfo.email")
		}
	}

	if len(missing) > 0 {
		return &IncompleteError{Step: StepAddress, Fields: missing}
	}
	return nil
}

package order

import (
	"strings"

	"github.com/xenking/storefront/internal/domain/product"
)

// Request values keep track of which fields the client actually sent: a nil
// pointer means the field was absent or had the wrong JSON type.

// CreateRequest is the body of an order creation.
type CreateRequest struct {
	ProductID *int64
	Quantity  *int64
}

// ShippingRequest is the shipping_information object of a client info update.
type ShippingRequest struct {
	Country    *string
	Address    *string
	PostalCode *string
	City       *string
	Province   *string
}

// ClientInfoRequest attaches contact data to an order. Shipping is nil when
// the shipping_information object is missing.
type ClientInfoRequest struct {
	Email    *string
	Shipping *ShippingRequest
}

// CreditCardRequest is the credit_card object of a payment update.
type CreditCardRequest struct {
	Name            *string
	Number          *string
	ExpirationMonth *int64
	ExpirationYear  *int64
	CVV             *string
}

// ValidateCreate checks the structure of a creation request and returns the
// product id and quantity. Every structural problem yields the same
// ErrInvalidOrderRequest.
func ValidateCreate(req CreateRequest) (productID int64, quantity int, err error) {
	if req.ProductID == nil || req.Quantity == nil {
		return 0, 0, ErrInvalidOrderRequest
	}
	if *req.ProductID <= 0 || *req.Quantity <= 0 || *req.Quantity > maxQuantity {
		return 0, 0, ErrInvalidOrderRequest
	}
	return *req.ProductID, int(*req.Quantity), nil
}

// maxQuantity keeps quantity × weight and price × quantity well inside int64.
const maxQuantity = 1 << 31

// CheckAvailable rejects out-of-stock products.
func CheckAvailable(p *product.Product) error {
	if p == nil || !p.InStock {
		return ErrProductUnavailable
	}
	return nil
}

// ValidateClientInfo checks that the email and all five shipping fields are
// present and not blank.
func ValidateClientInfo(req ClientInfoRequest) (Client, error) {
	email, ok := nonBlank(req.Email)
	if !ok || req.Shipping == nil {
		return Client{}, ErrInvalidClientInfo
	}
	s := req.Shipping
	var (
		info ShippingInformation
		oks  [5]bool
	)
	info.Country, oks[0] = nonBlank(s.Country)
	info.Address, oks[1] = nonBlank(s.Address)
	info.PostalCode, oks[2] = nonBlank(s.PostalCode)
	info.City, oks[3] = nonBlank(s.City)
	info.Province, oks[4] = nonBlank(s.Province)
	for _, ok := range oks {
		if !ok {
			return Client{}, ErrInvalidClientInfo
		}
	}
	return Client{Email: email, Shipping: info}, nil
}

// ValidateCreditCard checks that all five card fields are present.
func ValidateCreditCard(req CreditCardRequest) (CreditCard, error) {
	if req.Name == nil || req.Number == nil || req.ExpirationMonth == nil ||
		req.ExpirationYear == nil || req.CVV == nil {
		return CreditCard{}, ErrInvalidCreditCardShape
	}
	return CreditCard{
		Name:            *req.Name,
		Number:          *req.Number,
		ExpirationMonth: int(*req.ExpirationMonth),
		ExpirationYear:  int(*req.ExpirationYear),
		CVV:             *req.CVV,
	}, nil
}

// CheckPayable runs the state part of the credit card preconditions, in
// order: client information first, then the paid flag.
func CheckPayable(o *Order) (Client, Pricing, error) {
	client, ok := o.ClientInfo()
	if !ok {
		return Client{}, Pricing{}, ErrMissingClientInfo
	}
	if o.Paid() {
		return Client{}, Pricing{}, ErrAlreadyPaid
	}
	pricing, _ := o.Pricing()
	return client, pricing, nil
}

func nonBlank(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

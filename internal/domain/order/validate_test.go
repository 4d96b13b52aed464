package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{"valid", CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(3))}, false},
		{"missing id", CreateRequest{Quantity: ptr(int64(3))}, true},
		{"missing quantity", CreateRequest{ProductID: ptr(int64(1))}, true},
		{"negative quantity", CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(-1))}, true},
		{"zero id", CreateRequest{ProductID: ptr(int64(0)), Quantity: ptr(int64(1))}, true},
		{"huge quantity", CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(1) << 40)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, qty, err := ValidateCreate(tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOrderRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), id)
			assert.Equal(t, 3, qty)
		})
	}
}

func TestCheckAvailable(t *testing.T) {
	require.NoError(t, CheckAvailable(&product.Product{ID: 1, InStock: true}))
	require.ErrorIs(t, CheckAvailable(&product.Product{ID: 1}), ErrProductUnavailable)
	require.ErrorIs(t, CheckAvailable(nil), ErrProductUnavailable)
}

func TestValidateClientInfo_TrimsFields(t *testing.T) {
	req := validClientInfo()
	req.Email = ptr("  jgnault@uqac.ca ")

	client, err := ValidateClientInfo(req)
	require.NoError(t, err)
	assert.Equal(t, "jgnault@uqac.ca", client.Email)
	assert.Equal(t, "QC", client.Shipping.Province)
	assert.Zero(t, client.Shipping.ID)
}

func TestValidateClientInfo_MissingField(t *testing.T) {
	fields := map[string]func(*ShippingRequest){
		"country":     func(s *ShippingRequest) { s.Country = nil },
		"address":     func(s *ShippingRequest) { s.Address = ptr("") },
		"postal_code": func(s *ShippingRequest) { s.PostalCode = nil },
		"city":        func(s *ShippingRequest) { s.City = ptr(" ") },
		"province":    func(s *ShippingRequest) { s.Province = nil },
	}
	for name, clear := range fields {
		t.Run(name, func(t *testing.T) {
			req := validClientInfo()
			clear(req.Shipping)

			_, err := ValidateClientInfo(req)
			require.ErrorIs(t, err, ErrInvalidClientInfo)
		})
	}
}

func TestValidateCreditCard(t *testing.T) {
	card, err := ValidateCreditCard(validCard())
	require.NoError(t, err)
	assert.Equal(t, "4242 4242 4242 4242", card.Number)
	assert.Equal(t, 9, card.ExpirationMonth)
	assert.Equal(t, 2030, card.ExpirationYear)

	req := validCard()
	req.ExpirationYear = nil
	_, err = ValidateCreditCard(req)
	require.ErrorIs(t, err, ErrInvalidCreditCardShape)
}

func TestCheckPayable(t *testing.T) {
	client := Client{Email: "a@b.c"}
	pricing := Pricing{}

	_, _, err := CheckPayable(&Order{State: Created{}})
	require.ErrorIs(t, err, ErrMissingClientInfo)

	_, _, err = CheckPayable(&Order{State: Paid{Client: client, Pricing: pricing}})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	got, _, err := CheckPayable(&Order{State: PaymentFailed{Client: client, Pricing: pricing}})
	require.NoError(t, err)
	assert.Equal(t, client, got)
}

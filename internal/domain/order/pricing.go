package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// Shipping tiers, keyed on quantity × product weight. Breakpoints are
// half-open: a mass equal to a breakpoint falls in the upper tier.
const (
	LightMassLimit  = 500
	MediumMassLimit = 2000
)

var (
	LightShipping  = decimal.RequireFromString("5.00")
	MediumShipping = decimal.RequireFromString("10.00")
	HeavyShipping  = decimal.RequireFromString("25.00")
)

// TotalPrice returns product price × quantity. Quantity must already be
// validated as positive.
func TotalPrice(p product.Product, quantity int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(quantity)))
}

// ShippingPrice returns the flat shipping fee for the total mass of the order.
func ShippingPrice(p product.Product, quantity int) decimal.Decimal {
	return shippingForMass(int64(quantity) * int64(p.Weight))
}

func shippingForMass(mass int64) decimal.Decimal {
	switch {
	case mass < LightMassLimit:
		return LightShipping
	case mass < MediumMassLimit:
		return MediumShipping
	default:
		return HeavyShipping
	}
}

// Price computes both prices of an order for the given product and quantity.
func Price(p product.Product, quantity int) Pricing {
	return Pricing{
		TotalPrice:    TotalPrice(p, quantity),
		ShippingPrice: ShippingPrice(p, quantity),
	}
}

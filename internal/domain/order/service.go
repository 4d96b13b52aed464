package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultChargeTimeout bounds a gateway call when no timeout is configured.
const DefaultChargeTimeout = 10 * time.Second

// Service drives the order state machine:
//
//	Create         -> Created
//	SetClientInfo  Created | AddressSet | PaymentFailed -> AddressSet
//	SetCreditCard  AddressSet | PaymentFailed -> Paid | PaymentFailed
//
// Paid orders reject every mutation with ErrAlreadyPaid.
type Service struct {
	products      product.Repository
	orders        Repository
	gateway       Gateway
	chargeTimeout time.Duration

	created  metric.Int64Counter
	payments metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithChargeTimeout bounds every gateway call.
func WithChargeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.chargeTimeout = d
		}
	}
}

// WithMeterProvider records order and payment counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		meter := mp.Meter("github.com/xenking/storefront/internal/domain/order")
		if c, err := meter.Int64Counter("storefront.orders.created",
			metric.WithDescription("Orders created"),
		); err == nil {
			s.created = c
		}
		if c, err := meter.Int64Counter("storefront.payments",
			metric.WithDescription("Charge attempts by outcome"),
		); err == nil {
			s.payments = c
		}
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	gateway Gateway,
	opts ...Option,
) *Service {
	s := &Service{
		products:      products,
		orders:        orders,
		gateway:       gateway,
		chargeTimeout: DefaultChargeTimeout,
		created:       noop.Int64Counter{},
		payments:      noop.Int64Counter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, checks product availability and persists a
// new order in the Created state. Identical requests create distinct orders.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	productID, quantity, err := ValidateCreate(req)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, storageErr("get product", err)
	}
	if err := CheckAvailable(p); err != nil {
		return nil, err
	}

	o := &Order{
		ProductID: p.ID,
		Quantity:  quantity,
		State:     Created{},
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, storageErr("create order", err)
	}
	s.created.Add(ctx, 1)

	return o, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	return o, nil
}

// SetClientInfo attaches the email and shipping address, prices the order and
// moves it to AddressSet. A previous address of the same order is overwritten.
func (s *Service) SetClientInfo(ctx context.Context, id int64, req ClientInfoRequest) (*Order, error) {
	// Products are immutable, so the product can be read before taking the
	// order lock; everything inside WithOrder goes through tx.
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	p, err := s.products.GetByID(ctx, current.ProductID)
	if err != nil {
		return nil, storageErr("get product", err)
	}

	var result *Order
	err = s.orders.WithOrder(ctx, id, func(ctx context.Context, o *Order, tx Tx) error {
		if o.Paid() {
			return ErrAlreadyPaid
		}
		client, err := ValidateClientInfo(req)
		if err != nil {
			return err
		}
		if prev, ok := o.ClientInfo(); ok {
			client.Shipping.ID = prev.Shipping.ID
		}

		if err := tx.SaveShippingInformation(ctx, &client.Shipping); err != nil {
			return errors.Wrap(err, "save shipping information")
		}
		o.State = AddressSet{
			Client:  client,
			Pricing: Price(*p, o.Quantity),
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		result = o
		return nil
	})
	if err != nil {
		return nil, storageErr("set client info", err)
	}
	return result, nil
}

// SetCreditCard runs the payment preconditions, charges total_price +
// shipping_price through the gateway and records the card and transaction.
// The order ends up Paid or PaymentFailed. When the gateway itself fails
// nothing is recorded and the order keeps its previous state.
func (s *Service) SetCreditCard(ctx context.Context, id int64, req CreditCardRequest) (*Order, error) {
	// Once the gateway approves a charge its records must be written, so the
	// caller going away does not cancel this call. chargeTimeout still bounds
	// the gateway.
	ctx = context.WithoutCancel(ctx)

	var (
		result  *Order
		charged *Transaction
	)
	err := s.orders.WithOrder(ctx, id, func(ctx context.Context, o *Order, tx Tx) error {
		client, pricing, err := CheckPayable(o)
		if err != nil {
			return err
		}
		card, err := ValidateCreditCard(req)
		if err != nil {
			return err
		}

		txn, err := s.charge(ctx, Charge{
			OrderID: o.ID,
			Amount:  pricing.Amount(),
			Card:    card,
		})
		if err != nil {
			return err
		}
		charged = txn

		if err := tx.CreateCreditCard(ctx, &card); err != nil {
			return errors.Wrap(err, "create credit card")
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return errors.Wrap(err, "create transaction")
		}
		if txn.Success {
			o.State = Paid{Client: client, Pricing: pricing, Card: card, Transaction: *txn}
		} else {
			o.State = PaymentFailed{Client: client, Pricing: pricing, Card: card, Transaction: *txn}
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		result = o
		return nil
	})

	lg := zctx.From(ctx).With(zap.Int64("order_id", id))
	switch {
	case err != nil && charged != nil && charged.Success:
		// The card was charged but the order could not record it.
		lg.Error("Charge succeeded but was not recorded",
			zap.String("transaction_id", charged.ID),
			zap.Error(err),
		)
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unrecorded")))
	case errors.Is(err, ErrGatewayTimeout), errors.Is(err, ErrGatewayError):
		lg.Warn("Charge failed", zap.Error(err))
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
	case err == nil && result.Paid():
		lg.Info("Order paid", zap.String("transaction_id", charged.ID))
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "paid")))
	case err == nil:
		lg.Info("Charge declined", zap.String("transaction_id", charged.ID))
		s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "declined")))
	}
	if err != nil {
		return nil, storageErr("set credit card", err)
	}
	return result, nil
}

// charge calls the gateway under the configured timeout and normalizes its
// errors into ErrGatewayTimeout and ErrGatewayError.
func (s *Service) charge(ctx context.Context, c Charge) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	txn, err := s.gateway.Charge(ctx, c)
	switch {
	case err == nil && txn == nil:
		return nil, withMessage(ErrGatewayError, "The payment service returned no transaction.")
	case err == nil:
		return txn, nil
	case errors.Is(err, ErrGatewayTimeout), errors.Is(err, ErrGatewayError):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded):
		return nil, wrap(ErrGatewayTimeout, err)
	default:
		return nil, wrap(ErrGatewayError, err)
	}
}

// storageErr passes tagged errors through and tags everything else as a
// storage failure.
func storageErr(op string, err error) error {
	var oe *Error
	if errors.As(err, &oe) {
		return err
	}
	return wrap(ErrStorage, errors.Wrap(err, op))
}

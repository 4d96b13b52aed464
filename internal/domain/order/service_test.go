package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[int64]*product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// mockOrderRepo keeps committed orders in a map. WithOrder hands fn a copy
// and only stores it back when fn and every tx write succeed.
type mockOrderRepo struct {
	orders    map[int64]Order
	nextID    int64
	createErr error
	updateErr error

	shippingWrites int
	cards          []CreditCard
	txns           []Transaction
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[int64]Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) WithOrder(ctx context.Context, id int64, fn func(context.Context, *Order, Tx) error) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	tx := &mockTx{updateErr: m.updateErr}
	if err := fn(ctx, &o, tx); err != nil {
		return err
	}
	m.orders[id] = o
	m.shippingWrites += tx.shippingWrites
	m.cards = append(m.cards, tx.cards...)
	m.txns = append(m.txns, tx.txns...)
	return nil
}

type mockTx struct {
	updateErr      error
	shippingWrites int
	cards          []CreditCard
	txns           []Transaction
}

func (t *mockTx) SaveShippingInformation(_ context.Context, info *ShippingInformation) error {
	t.shippingWrites++
	if info.ID == 0 {
		info.ID = 100 + int64(t.shippingWrites)
	}
	return nil
}

func (t *mockTx) CreateCreditCard(ctx context.Context, card *CreditCard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	card.ID = int64(len(t.cards) + 1)
	t.cards = append(t.cards, *card)
	return nil
}

func (t *mockTx) CreateTransaction(ctx context.Context, txn *Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.txns = append(t.txns, *txn)
	return nil
}

func (t *mockTx) UpdateOrder(ctx context.Context, _ *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.updateErr
}

type mockGateway struct {
	calls []Charge
	txn   *Transaction
	err   error
	wait  bool
}

func (m *mockGateway) Charge(ctx context.Context, c Charge) (*Transaction, error) {
	m.calls = append(m.calls, c)
	if m.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.txn, m.err
}

// cancellingGateway approves the charge after the caller has gone away.
type cancellingGateway struct {
	cancel context.CancelFunc
	txn    *Transaction
	calls  int
}

func (g *cancellingGateway) Charge(context.Context, Charge) (*Transaction, error) {
	g.calls++
	g.cancel()
	return g.txn, nil
}

// --- Helpers ---

func ptr[T any](v T) *T { return &v }

func newTestProduct(id int64, price string, weight int, inStock bool) product.Product {
	return product.Product{
		ID:          id,
		Name:        "Brown eggs",
		Type:        "dairy",
		Description: "Raw organic brown eggs in a basket",
		Image:       "0.jpg",
		Height:      600,
		Weight:      weight,
		Price:       decimal.RequireFromString(price),
		Rating:      5,
		InStock:     inStock,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func validClientInfo() ClientInfoRequest {
	return ClientInfoRequest{
		Email: ptr("jgnault@uqac.ca"),
		Shipping: &ShippingRequest{
			Country:    ptr("Canada"),
			Address:    ptr("201, rue Président-Kennedy"),
			PostalCode: ptr("G7X 3Y7"),
			City:       ptr("Chicoutimi"),
			Province:   ptr("QC"),
		},
	}
}

func validCard() CreditCardRequest {
	return CreditCardRequest{
		Name:            ptr("John Doe"),
		Number:          ptr("4242 4242 4242 4242"),
		ExpirationMonth: ptr(int64(9)),
		ExpirationYear:  ptr(int64(2030)),
		CVV:             ptr("123"),
	}
}

func successTxn(amount string) *Transaction {
	a := decimal.RequireFromString(amount)
	return &Transaction{ID: "wgEQ4zAUdYqpr21rt8A10dDrKbfcLmqi", Success: true, AmountCharged: &a}
}

type fixture struct {
	svc     *Service
	orders  *mockOrderRepo
	gateway *mockGateway
}

func newFixture(products ...product.Product) *fixture {
	if len(products) == 0 {
		products = []product.Product{newTestProduct(1, "28.10", 400, true)}
	}
	f := &fixture{
		orders:  newOrderRepo(),
		gateway: &mockGateway{txn: successTxn("61.20")},
	}
	f.svc = NewService(newProductRepo(products...), f.orders, f.gateway)
	return f
}

func (f *fixture) create(t *testing.T, productID, quantity int64) *Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateRequest{
		ProductID: ptr(productID),
		Quantity:  ptr(quantity),
	})
	require.NoError(t, err)
	return o
}

// --- Create ---

func TestCreate(t *testing.T) {
	f := newFixture()

	o := f.create(t, 1, 2)
	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, int64(1), o.ProductID)
	assert.Equal(t, 2, o.Quantity)
	assert.Equal(t, StatusCreated, o.Status())
	assert.False(t, o.Paid())

	_, ok := o.ClientInfo()
	assert.False(t, ok)
	_, ok = o.Pricing()
	assert.False(t, ok)
}

func TestCreate_IdenticalRequestsCreateDistinctOrders(t *testing.T) {
	f := newFixture()

	first := f.create(t, 1, 1)
	second := f.create(t, 1, 1)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{"missing product", CreateRequest{}, ErrInvalidOrderRequest},
		{"missing quantity", CreateRequest{ProductID: ptr(int64(1))}, ErrInvalidOrderRequest},
		{"negative quantity", CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(-1))}, ErrInvalidOrderRequest},
		{"zero quantity", CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(0))}, ErrInvalidOrderRequest},
		{"unknown product", CreateRequest{ProductID: ptr(int64(99)), Quantity: ptr(int64(1))}, ErrProductUnavailable},
		{"out of stock", CreateRequest{ProductID: ptr(int64(2)), Quantity: ptr(int64(1))}, ErrProductUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(
				newTestProduct(1, "28.10", 400, true),
				newTestProduct(2, "10.00", 100, false),
			)
			_, err := f.svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.orders.orders)
		})
	}
}

func TestCreate_StorageError(t *testing.T) {
	f := newFixture()
	f.orders.createErr = errors.New("connection refused")

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ProductID: ptr(int64(1)),
		Quantity:  ptr(int64(1)),
	})
	require.ErrorIs(t, err, ErrStorage)
}

// --- Get ---

func TestGet_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

// --- SetClientInfo ---

func TestSetClientInfo(t *testing.T) {
	f := newFixture(newTestProduct(1, "28.10", 400, true))
	o := f.create(t, 1, 2)

	got, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)

	assert.Equal(t, StatusAddressSet, got.Status())
	client, ok := got.ClientInfo()
	require.True(t, ok)
	assert.Equal(t, "jgnault@uqac.ca", client.Email)
	assert.Equal(t, "Chicoutimi", client.Shipping.City)

	pricing, ok := got.Pricing()
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("56.20").Equal(pricing.TotalPrice), "total: %s", pricing.TotalPrice)
	// 2 × 400 = 800, medium tier.
	assert.True(t, MediumShipping.Equal(pricing.ShippingPrice))

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAddressSet, stored.Status())
}

func TestSetClientInfo_OverwriteReusesShippingRow(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)

	first, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	firstClient, _ := first.ClientInfo()

	req := validClientInfo()
	req.Shipping.City = ptr("Québec")
	second, err := f.svc.SetClientInfo(context.Background(), o.ID, req)
	require.NoError(t, err)
	secondClient, _ := second.ClientInfo()

	assert.Equal(t, firstClient.Shipping.ID, secondClient.Shipping.ID)
	assert.Equal(t, "Québec", secondClient.Shipping.City)
	assert.Equal(t, 2, f.orders.shippingWrites)
}

func TestSetClientInfo_Errors(t *testing.T) {
	blank := validClientInfo()
	blank.Shipping.Province = ptr("   ")
	noShipping := validClientInfo()
	noShipping.Shipping = nil
	noEmail := validClientInfo()
	noEmail.Email = nil

	tests := []struct {
		name string
		req  ClientInfoRequest
	}{
		{"blank province", blank},
		{"missing shipping", noShipping},
		{"missing email", noEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			o := f.create(t, 1, 1)

			_, err := f.svc.SetClientInfo(context.Background(), o.ID, tt.req)
			require.ErrorIs(t, err, ErrInvalidClientInfo)

			stored, err := f.svc.Get(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusCreated, stored.Status())
		})
	}
}

func TestSetClientInfo_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.SetClientInfo(context.Background(), 7, validClientInfo())
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSetClientInfo_PaidOrder(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	_, err = f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.NoError(t, err)

	// Paid is checked before the payload shape.
	_, err = f.svc.SetClientInfo(context.Background(), o.ID, ClientInfoRequest{})
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestSetClientInfo_StorageError(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)
	f.orders.updateErr = errors.New("disk full")

	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.ErrorIs(t, err, ErrStorage)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, stored.Status())
}

// --- SetCreditCard ---

func TestSetCreditCard_Paid(t *testing.T) {
	f := newFixture(newTestProduct(1, "28.10", 400, true))
	o := f.create(t, 1, 2)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)

	got, err := f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.NoError(t, err)

	assert.True(t, got.Paid())
	assert.Equal(t, StatusPaid, got.Status())

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, o.ID, call.OrderID)
	// 56.20 + 10.00 shipping.
	assert.True(t, decimal.RequireFromString("66.20").Equal(call.Amount), "amount: %s", call.Amount)
	assert.Equal(t, "4242 4242 4242 4242", call.Card.Number)

	card, txn, ok := got.Payment()
	require.True(t, ok)
	assert.Equal(t, "John Doe", card.Name)
	assert.True(t, txn.Success)
	assert.Len(t, f.orders.cards, 1)
	assert.Len(t, f.orders.txns, 1)
}

func TestSetCreditCard_DeclinedThenRetry(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)

	f.gateway.txn = &Transaction{ID: "declined-1", Success: false}
	got, err := f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentFailed, got.Status())
	assert.False(t, got.Paid())

	f.gateway.txn = successTxn("33.10")
	got, err = f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status())
	assert.Len(t, f.orders.txns, 2)
}

func TestSetCreditCard_AddressAfterDeclineResetsPayment(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	f.gateway.txn = &Transaction{ID: "declined-1", Success: false}
	_, err = f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.NoError(t, err)

	got, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	assert.Equal(t, StatusAddressSet, got.Status())
	_, _, ok := got.Payment()
	assert.False(t, ok)
}

func TestSetCreditCard_PreconditionOrder(t *testing.T) {
	t.Run("missing client info before card shape", func(t *testing.T) {
		f := newFixture()
		o := f.create(t, 1, 1)

		_, err := f.svc.SetCreditCard(context.Background(), o.ID, CreditCardRequest{})
		require.ErrorIs(t, err, ErrMissingClientInfo)
		assert.Empty(t, f.gateway.calls)
	})

	t.Run("already paid before card shape", func(t *testing.T) {
		f := newFixture()
		o := f.create(t, 1, 1)
		_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
		require.NoError(t, err)
		_, err = f.svc.SetCreditCard(context.Background(), o.ID, validCard())
		require.NoError(t, err)

		_, err = f.svc.SetCreditCard(context.Background(), o.ID, CreditCardRequest{})
		require.ErrorIs(t, err, ErrAlreadyPaid)
		assert.Len(t, f.gateway.calls, 1)
	})

	t.Run("card shape", func(t *testing.T) {
		f := newFixture()
		o := f.create(t, 1, 1)
		_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
		require.NoError(t, err)

		card := validCard()
		card.CVV = nil
		_, err = f.svc.SetCreditCard(context.Background(), o.ID, card)
		require.ErrorIs(t, err, ErrInvalidCreditCardShape)
		assert.Empty(t, f.gateway.calls)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.SetCreditCard(context.Background(), 1, validCard())
		require.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestSetCreditCard_GatewayFailureKeepsState(t *testing.T) {
	tests := []struct {
		name    string
		gateway *mockGateway
		wantErr error
	}{
		{"gateway error", &mockGateway{err: errors.New("connection reset")}, ErrGatewayError},
		{"tagged gateway error", &mockGateway{err: ErrGatewayError}, ErrGatewayError},
		{"no transaction", &mockGateway{}, ErrGatewayError},
		{"timeout", &mockGateway{wait: true}, ErrGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newOrderRepo()
			svc := NewService(
				newProductRepo(newTestProduct(1, "28.10", 400, true)),
				orders,
				tt.gateway,
				WithChargeTimeout(10*time.Millisecond),
			)
			o, err := svc.Create(context.Background(), CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(1))})
			require.NoError(t, err)
			_, err = svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
			require.NoError(t, err)

			_, err = svc.SetCreditCard(context.Background(), o.ID, validCard())
			require.ErrorIs(t, err, tt.wantErr)

			stored, err := svc.Get(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusAddressSet, stored.Status())
			assert.Empty(t, orders.cards)
			assert.Empty(t, orders.txns)
		})
	}
}

func TestSetCreditCard_UnrecordedCharge(t *testing.T) {
	f := newFixture()
	o := f.create(t, 1, 1)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	f.orders.updateErr = errors.New("disk full")

	_, err = f.svc.SetCreditCard(context.Background(), o.ID, validCard())
	require.ErrorIs(t, err, ErrStorage)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.False(t, stored.Paid())
}

func TestStorageErr_PassesTaggedErrors(t *testing.T) {
	err := storageErr("op", errors.Wrap(ErrOrderNotFound, "lookup"))
	require.ErrorIs(t, err, ErrOrderNotFound)
	assert.NotErrorIs(t, err, ErrStorage)

	err = storageErr("op", errors.New("boom"))
	require.ErrorIs(t, err, ErrStorage)
}

func TestSetCreditCard_CallerCancelledAfterCharge(t *testing.T) {
	orders := newOrderRepo()
	gateway := &cancellingGateway{txn: successTxn("33.10")}
	svc := NewService(newProductRepo(newTestProduct(1, "28.10", 400, true)), orders, gateway)

	o, err := svc.Create(context.Background(), CreateRequest{ProductID: ptr(int64(1)), Quantity: ptr(int64(1))})
	require.NoError(t, err)
	_, err = svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gateway.cancel = cancel

	got, err := svc.SetCreditCard(ctx, o.ID, validCard())
	require.NoError(t, err)
	assert.True(t, got.Paid())
	assert.Equal(t, 1, gateway.calls)

	stored, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid())
	assert.Len(t, orders.cards, 1)
	assert.Len(t, orders.txns, 1)
}

func TestSetCreditCard_CancelledCallerStillBoundedByTimeout(t *testing.T) {
	f := newFixture()
	f.svc = NewService(newProductRepo(newTestProduct(1, "28.10", 400, true)), f.orders, f.gateway,
		WithChargeTimeout(10*time.Millisecond),
	)
	o := f.create(t, 1, 1)
	_, err := f.svc.SetClientInfo(context.Background(), o.ID, validClientInfo())
	require.NoError(t, err)
	f.gateway.wait = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.SetCreditCard(ctx, o.ID, validCard())
	require.ErrorIs(t, err, ErrGatewayTimeout)
}

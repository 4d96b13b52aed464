package order

// Code tags every error the order flow can return to a client.
type Code string

const (
	CodeInvalidOrderRequest    Code = "invalid-order-request"
	CodeProductUnavailable     Code = "product-unavailable"
	CodeOrderNotFound          Code = "order-not-found"
	CodeInvalidClientInfo      Code = "invalid-client-info"
	CodeMissingClientInfo      Code = "missing-client-info"
	CodeAlreadyPaid            Code = "already-paid"
	CodeInvalidCreditCardShape Code = "invalid-credit-card"
	CodeGatewayTimeout         Code = "gateway-timeout"
	CodeGatewayError           Code = "gateway-error"
	CodeStorageError           Code = "storage-error"
)

// Error is the tagged error returned by the validator and the state machine.
// Two errors match under errors.Is when their codes are equal, so callers
// compare against the sentinels below regardless of message or cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors. The messages are part of the public API.
var (
	ErrInvalidOrderRequest = &Error{
		Code:    CodeInvalidOrderRequest,
		Message: `The creation of an order requires a single product. The product dict must have the following form: { "product": { "id": 123, "quantity": 2 } }`,
	}
	ErrProductUnavailable = &Error{
		Code:    CodeProductUnavailable,
		Message: "The product you asked for is not in the inventory for now.",
	}
	ErrOrderNotFound = &Error{
		Code:    CodeOrderNotFound,
		Message: "Order not found",
	}
	ErrInvalidClientInfo = &Error{
		Code:    CodeInvalidClientInfo,
		Message: "The client informations require an email and a shipping_information dict with country, address, postal_code, city and province.",
	}
	ErrMissingClientInfo = &Error{
		Code:    CodeMissingClientInfo,
		Message: "Client informations are required before applying a credit card to the order.",
	}
	ErrAlreadyPaid = &Error{
		Code:    CodeAlreadyPaid,
		Message: "The order has already been paid.",
	}
	ErrInvalidCreditCardShape = &Error{
		Code:    CodeInvalidCreditCardShape,
		Message: "The structure of the credit card dict is invalid or there is a least one missing field.",
	}
	ErrGatewayTimeout = &Error{
		Code:    CodeGatewayTimeout,
		Message: "The payment service did not answer in time.",
	}
	ErrGatewayError = &Error{
		Code:    CodeGatewayError,
		Message: "The payment service failed to process the request.",
	}
	ErrStorage = &Error{
		Code:    CodeStorageError,
		Message: "storage failure",
	}
)

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: cause}
}

func wrap(sentinel *Error, cause error) *Error {
	return sentinel.WithCause(cause)
}

func withMessage(sentinel *Error, msg string) *Error {
	return &Error{Code: sentinel.Code, Message: msg}
}

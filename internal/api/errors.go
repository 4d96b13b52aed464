package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// writeError maps tagged order errors to their status and literal message.
// Anything else is a 500 whose cause is logged, not returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *order.Error
	if !errors.As(err, &oe) {
		oe = order.ErrStorage.WithCause(err)
	}

	status := statusOf(oe.Code)
	if status >= http.StatusInternalServerError {
		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, string(oe.Code))

		zctx.From(r.Context()).Error("Request failed",
			zap.String("code", string(oe.Code)),
			zap.Error(err),
		)
	}
	if oe.Code == order.CodeStorageError {
		httpmiddleware.WriteError(w, status, "internal", "Internal Server Error")
		return
	}
	httpmiddleware.WriteError(w, status, string(oe.Code), oe.Message)
}

func statusOf(code order.Code) int {
	switch code {
	case order.CodeOrderNotFound:
		return http.StatusNotFound
	case order.CodeInvalidOrderRequest,
		order.CodeProductUnavailable,
		order.CodeInvalidClientInfo,
		order.CodeMissingClientInfo,
		order.CodeAlreadyPaid,
		order.CodeInvalidCreditCardShape:
		return http.StatusUnprocessableEntity
	case order.CodeGatewayError:
		return http.StatusBadGateway
	case order.CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

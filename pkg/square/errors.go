package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// mapError folds SDK failures into the processor error classes. A missing
// order stays NotFound so callers can tell it apart from an outage.
func mapError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return checkout.UpstreamError(ctx, err, "square "+op)
	}

	code := pkgerrors.CodeUpstream
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		code = pkgerrors.CodeUpstreamTime
	}
	for _, detail := range apiErrors(apiErr) {
		if detail != nil && detail.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
		}
	}
	if code == pkgerrors.CodeUpstream {
		return checkout.UpstreamError(ctx, err, "square "+op)
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

// apiErrors decodes the errors array Square returns in the response body.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

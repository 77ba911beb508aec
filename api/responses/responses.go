// Package responses renders the JSON envelopes every handler returns.
//
//	{"data": ...}
//	{"error": {"code": "...", "message": "...", "details": ...}}
package responses

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type Success struct {
	Data any `json:"data"`
}

type Failure struct {
	Error Problem `json:"error"`
}

type Problem struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

// Codes whose own message is safe to show the caller. Everything else gets the
// generic public message for its code.
var callerFacing = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeForbidden:     true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeOutOfStock:    true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeIdempotency:   true,
	pkgerrors.CodeRateLimit:     true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Data: data})
}

// WriteError maps err onto its code's status and logs the full dump. Untyped
// errors surface as internal errors with no detail.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	status, body := Render(err)
	if logg != nil && err != nil {
		logFailure(ctx, logg, status, err)
	}
	writeJSON(w, status, body)
}

// Render builds the status and envelope for err without writing anything.
func Render(err error) (int, Failure) {
	typed := pkgerrors.As(err)
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	problem := Problem{Code: code, Message: meta.PublicMessage}
	if typed != nil && callerFacing[code] && typed.Message() != "" {
		problem.Message = typed.Message()
	}
	if typed != nil && meta.DetailsAllowed {
		problem.Details = typed.Details()
	}
	return meta.HTTPStatus, Failure{Error: problem}
}

func logFailure(ctx context.Context, logg *logger.Logger, status int, err error) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"status":      status,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_constraint"] = dump.PGConstraint
		fields["pg_table"] = dump.PGTable
		fields["pg_column"] = dump.PGColumn
		fields["pg_detail"] = dump.PGDetail
		fields["pg_message"] = dump.PGMessage
	}
	ctx = logg.WithFields(ctx, fields)

	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
		return
	}
	logg.Warn(ctx, "request rejected: "+dump.TopMessage)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

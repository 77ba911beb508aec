package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// PathParam returns the trimmed chi URL parameter.
func PathParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

func UUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := PathParam(r, key)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be a UUID")
	}
	return id, nil
}

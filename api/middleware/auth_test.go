package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront-admin"}

func mint(t *testing.T, cfg config.JWTConfig, subject, role string) string {
	t.Helper()
	signer, err := pkgAuth.NewSigner(cfg)
	require.NoError(t, err)
	token, err := signer.Sign(time.Now(), subject, role, time.Minute)
	require.NoError(t, err)
	return token
}

// serveAdmin sends a PATCH through AdminAuth and RequireRole and reports the
// status plus the subject the handler saw.
func serveAdmin(cfg config.JWTConfig, authorization string) (int, string) {
	var seen string
	handler := AdminAuth(cfg, nil)(RequireRole(pkgAuth.RoleAdmin, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/x/status", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestAdminAuthAcceptsAdminToken(t *testing.T) {
	code, subject := serveAdmin(testJWT, "Bearer "+mint(t, testJWT, "ops@example.com", pkgAuth.RoleAdmin))
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, "ops@example.com", subject)
}

func TestAdminAuthRejects(t *testing.T) {
	foreign := config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer}
	cases := map[string]struct {
		header string
		want   int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"basic scheme":   {"Basic b3BzOnB3", http.StatusUnauthorized},
		"bad signature":  {"Bearer " + mint(t, foreign, "x", pkgAuth.RoleAdmin), http.StatusUnauthorized},
		"non-admin role": {"bearer " + mint(t, testJWT, "viewer@example.com", "viewer"), http.StatusForbidden},
	}
	for name, tc := range cases {
		code, _ := serveAdmin(testJWT, tc.header)
		assert.Equal(t, tc.want, code, name)
	}
}

func TestAdminAuthMisconfigured(t *testing.T) {
	code, _ := serveAdmin(config.JWTConfig{}, "Bearer x")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("  bearer   abc "))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken("Token abc"))
}

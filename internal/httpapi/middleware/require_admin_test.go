package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, header, key string) int {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{
		Public: []string{"pub_key"},
		Admin:  []string{"adm_key"},
	}
	h := RequireAdmin(keys)(okHandler)

	if code := serve(h, "X-API-Key", "adm_key"); code != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", code)
	}
	if code := serve(h, "Authorization", "Bearer adm_key"); code != http.StatusOK {
		t.Fatalf("bearer admin key should pass; got %d", code)
	}
	if code := serve(h, "X-API-Key", "pub_key"); code != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", code)
	}
	if code := serve(h, "", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", code)
	}
}

func TestRequireAny(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	h := RequireAny(keys)(okHandler)

	if code := serve(h, "X-API-Key", "pub_key"); code != http.StatusOK {
		t.Fatalf("public key should pass; got %d", code)
	}
	if code := serve(h, "X-API-Key", "adm_key"); code != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", code)
	}
	if code := serve(h, "X-API-Key", "pub_ke"); code != http.StatusUnauthorized {
		t.Fatalf("prefix of a key must not pass; got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?api_key=pub_key", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query key should pass; got %d", rec.Code)
	}
}

func TestNoKeysConfiguredAllowsAll(t *testing.T) {
	if code := serve(RequireAny(Keys{})(okHandler), "", ""); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	if code := serve(RequireAdmin(Keys{})(okHandler), "", ""); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticResolver struct {
	keys map[string]string
}

func (r *staticResolver) Resolve(apiKey string) (string, error) {
	tenant, ok := r.keys[apiKey]
	if !ok {
		return "", errors.New("unknown key")
	}
	return tenant, nil
}

func echoTenant() (http.Handler, *string) {
	var seen string
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MasterUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &seen
}

func TestAPIKeyResolvesTenant(t *testing.T) {
	next, seen := echoTenant()
	handler := APIKey(&staticResolver{keys: map[string]string{"secret": "tenant1"}})(next)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if *seen != "tenant1" {
		t.Errorf("Expected the resolved tenant in context, got %q", *seen)
	}
}

func TestAPIKeyRejectsMissingKey(t *testing.T) {
	next, _ := echoTenant()
	handler := APIKey(&staticResolver{})(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", rec.Code)
	}
}

func TestAPIKeyRejectsUnknownKey(t *testing.T) {
	next, _ := echoTenant()
	handler := APIKey(&staticResolver{keys: map[string]string{"secret": "tenant1"}})(next)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an unknown key, got %d", rec.Code)
	}
}

func TestAPIKeyDevModeUsesHeader(t *testing.T) {
	next, seen := echoTenant()
	handler := APIKey(nil)(next)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Master-User", "tenant_dev")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if *seen != "tenant_dev" {
		t.Errorf("Expected the header tenant in context, got %q", *seen)
	}
}

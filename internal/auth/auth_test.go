package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNew(t *testing.T) {
	if _, err := New("", true); err == nil {
		t.Error("expected error when enabling auth without a secret")
	}
	a, err := New("", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Enabled() {
		t.Error("auth should be disabled")
	}
	var nilAuth *Authenticator
	if nilAuth.Enabled() {
		t.Error("nil authenticator should be disabled")
	}
}

func TestMintAndValidate(t *testing.T) {
	a, _ := New("secret", true)

	token, err := a.Mint("alice", time.Hour)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	subject, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if subject != "alice" {
		t.Errorf("expected subject alice, got %q", subject)
	}

	if _, err := a.Mint("", time.Hour); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestValidateRejects(t *testing.T) {
	a, _ := New("secret", true)
	other, _ := New("other-secret", true)

	foreign, err := other.Mint("bob", time.Hour)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	expiredAuth, _ := New("secret", true)
	expiredAuth.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := expiredAuth.Mint("carol", time.Hour)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "mallory"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", foreign},
		{"expired", expired},
		{"unsigned", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Validate(tt.token); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var gotSubject string
	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(200)
	})

	a, _ := New("secret", true)
	token, err := a.Mint("alice", time.Hour)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	disabled, _ := New("", false)

	tests := []struct {
		name       string
		auth       *Authenticator
		header     string
		wantCalled bool
		wantCode   int
		wantBody   string
		wantSub    string
	}{
		{name: "disabled passes through", auth: disabled, wantCalled: true, wantCode: 200},
		{name: "missing token", auth: a, wantCode: 401, wantBody: "Authentication required"},
		{name: "wrong scheme", auth: a, header: "Basic abc", wantCode: 401, wantBody: "Authentication required"},
		{name: "invalid token", auth: a, header: "Bearer invalid-token", wantCode: 401, wantBody: "Invalid authentication token"},
		{name: "valid token", auth: a, header: "Bearer " + token, wantCalled: true, wantCode: 200, wantSub: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled, gotSubject = false, ""
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			tt.auth.Middleware(testHandler).ServeHTTP(w, req)

			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %q", tt.wantBody, w.Body.String())
			}
			if gotSubject != tt.wantSub {
				t.Errorf("expected subject %q, got %q", tt.wantSub, gotSubject)
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	a, _ := New("secret", true)
	token, _ := a.Mint("alice", time.Hour)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Validate(token)
	}
}

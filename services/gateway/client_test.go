package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSandboxSession(t *testing.T) {
	client := NewClient(Config{})

	session, err := client.CreateSession(context.Background(), SessionRequest{
		Amount:   50000,
		Currency: "XOF",
		Label:    "Demande: acte (DEM-2025-000001)",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if !strings.HasPrefix(session.Reference, "PAY-") || len(session.Reference) != 16 {
		t.Errorf("reference = %q, want PAY- plus 12 characters", session.Reference)
	}
	if session.SessionID == "" {
		t.Error("session id empty")
	}
	if !strings.HasPrefix(session.ActionURL, "/sandbox/checkout/") {
		t.Errorf("action url = %q", session.ActionURL)
	}

	// Sandbox references are unique per session
	again, _ := client.CreateSession(context.Background(), SessionRequest{Amount: 1})
	if again.Reference == session.Reference {
		t.Error("two sandbox sessions share a reference")
	}
}

func TestCreateSessionAgainstProvider(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Errorf("path = %q, want /checkout/sessions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)

		json.NewEncoder(w).Encode(Session{
			Reference: "PAY-REMOTE000001",
			SessionID: "sess-1",
			ActionURL: "https://pay.example/checkout/sess-1",
		})
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:    server.URL,
		MerchantID: "M123",
		APIKey:     "secret",
		ReturnURL:  "https://juris.example/api/v1/pay/return",
	})

	session, err := client.CreateSession(context.Background(), SessionRequest{
		Amount:        25000,
		Currency:      "XOF",
		Label:         "Formation: Droit OHADA (FORM001)",
		CustomerEmail: "awa@example.sn",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if session.Reference != "PAY-REMOTE000001" {
		t.Errorf("reference = %q", session.Reference)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotPayload["merchant_id"] != "M123" {
		t.Errorf("merchant_id = %v", gotPayload["merchant_id"])
	}
	if gotPayload["amount"] != float64(25000) {
		t.Errorf("amount = %v", gotPayload["amount"])
	}
}

func TestCreateSessionProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid merchant"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "wrong"})
	_, err := client.CreateSession(context.Background(), SessionRequest{Amount: 1})
	if err == nil {
		t.Fatal("expected an error for a non-2xx gateway response")
	}
}

func TestVerifySignature(t *testing.T) {
	client := NewClient(Config{APIKey: "secret"})

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("PAY-X|sess-1|00"))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature("PAY-X", "sess-1", "00", valid) {
		t.Error("valid signature rejected")
	}
	if !client.VerifySignature("PAY-X", "sess-1", "00", strings.ToUpper(valid)) {
		t.Error("uppercase signature rejected")
	}
	if client.VerifySignature("PAY-X", "sess-1", "00", "deadbeef") {
		t.Error("forged signature accepted")
	}
	if client.VerifySignature("PAY-Y", "sess-1", "00", valid) {
		t.Error("signature accepted for the wrong reference")
	}

	// Sandbox mode accepts everything
	sandbox := NewClient(Config{})
	if !sandbox.VerifySignature("PAY-X", "sess-1", "00", "anything") {
		t.Error("sandbox rejected a hash")
	}
}

package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peerhaul/wallet-service/internal/app"
	"github.com/peerhaul/wallet-service/internal/store"
)

type webhookRepoStub struct {
	store.Repository

	marked   map[string]string
	unmarked []string
}

func (s *webhookRepoStub) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if _, ok := s.marked[eventID]; ok {
		return false, nil
	}
	s.marked[eventID] = eventType
	return true, nil
}

func (s *webhookRepoStub) UnmarkEvent(ctx context.Context, eventID string) error {
	s.unmarked = append(s.unmarked, eventID)
	delete(s.marked, eventID)
	return nil
}

func newWebhookTestHandler(secret string) (*WebhookHandler, *webhookRepoStub) {
	repo := &webhookRepoStub{marked: make(map[string]string)}
	service := app.NewService(repo, nil, nil, app.Settings{})
	return NewWebhookHandler(service, nil, secret), repo
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	handler, repo := newWebhookTestHandler("whsec_test")
	body := []byte(`{"id":"evt_1","type":"charge.updated","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(repo.marked) != 0 {
		t.Fatal("rejected delivery must not be recorded")
	}
}

func TestWebhookHandler_RejectsMissingSignature(t *testing.T) {
	handler, _ := newWebhookTestHandler("whsec_test")
	body := []byte(`{"id":"evt_1","type":"charge.updated","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookHandler_AcceptsValidSignature(t *testing.T) {
	handler, repo := newWebhookTestHandler("whsec_test")
	body := []byte(`{"id":"evt_1","type":"charge.updated","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("whsec_test", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := repo.marked["evt_1"]; !ok {
		t.Fatal("expected event id recorded")
	}
}

func TestWebhookHandler_AcceptsPrefixedSignature(t *testing.T) {
	handler, _ := newWebhookTestHandler("whsec_test")
	body := []byte(`{"id":"evt_2","type":"charge.updated","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "sha256="+sign("whsec_test", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sha256= prefixed signature, got %d", rec.Code)
	}
}

func TestWebhookHandler_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	handler, repo := newWebhookTestHandler("whsec_test")
	body := []byte(`{"id":"evt_dup","type":"charge.updated","data":{"object":{}}}`)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
		req.Header.Set(signatureHeader, sign("whsec_test", body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if len(repo.marked) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(repo.marked))
	}
}

func TestWebhookHandler_RejectsMalformedEvent(t *testing.T) {
	handler, _ := newWebhookTestHandler("whsec_test")
	body := []byte(`{"type":"charge.updated"}`) // missing event id

	req := httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("whsec_test", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing event id, got %d", rec.Code)
	}
}

package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/covaultio/covault/internal/middleware"
	"github.com/covaultio/covault/internal/models"
	handler "github.com/covaultio/covault/internal/server/handler/http"
)

// fakeVaultService returns preconfigured results per method; unset
// methods return zero values.
type fakeVaultService struct {
	importFn        func(subject string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error)
	provisionFn     func(caller string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error)
	grantFn         func(caller, handleID, subject string, kind models.GrantKind) error
	selfGrantFn     func(caller, handleID string) error
	revokeFn        func(caller, handleID, subject string) error
	accessFn        func(handleID, subject string) (bool, error)
	typeTagFn       func(handleID string) (models.TypeTag, error)
	setRoleFn       func(caller, account string, ciphertext, proof []byte) (models.Handle, error)
	adminTransferFn func(caller, newAdmin string) error
	readFn          func(subject, valueID, condID string) ([]byte, error)
	provisionReadFn func(caller, subject, valueID, condID string) (models.Handle, error)
	readPersistFn   func(subject, valueID, condID string) (models.Handle, error)
	setPersistFn    func(caller, valueID, account string, allowed bool) error
}

func (f *fakeVaultService) ImportValue(_ context.Context, subject string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error) {
	if f.importFn == nil {
		return models.Handle{}, nil
	}
	return f.importFn(subject, ciphertext, tag, proof)
}

func (f *fakeVaultService) ProvisionSecret(_ context.Context, caller string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error) {
	if f.provisionFn == nil {
		return models.Handle{}, nil
	}
	return f.provisionFn(caller, ciphertext, tag, proof)
}

func (f *fakeVaultService) Grant(_ context.Context, caller, handleID, subject string, kind models.GrantKind) error {
	if f.grantFn == nil {
		return nil
	}
	return f.grantFn(caller, handleID, subject, kind)
}

func (f *fakeVaultService) SelfGrant(_ context.Context, caller, handleID string) error {
	if f.selfGrantFn == nil {
		return nil
	}
	return f.selfGrantFn(caller, handleID)
}

func (f *fakeVaultService) Revoke(_ context.Context, caller, handleID, subject string) error {
	if f.revokeFn == nil {
		return nil
	}
	return f.revokeFn(caller, handleID, subject)
}

func (f *fakeVaultService) Access(_ context.Context, handleID, subject string) (bool, error) {
	if f.accessFn == nil {
		return false, nil
	}
	return f.accessFn(handleID, subject)
}

func (f *fakeVaultService) TypeTagOf(_ context.Context, handleID string) (models.TypeTag, error) {
	if f.typeTagFn == nil {
		return models.TypeUint64, nil
	}
	return f.typeTagFn(handleID)
}

func (f *fakeVaultService) SetRole(_ context.Context, caller, account string, ciphertext, proof []byte) (models.Handle, error) {
	if f.setRoleFn == nil {
		return models.Handle{}, nil
	}
	return f.setRoleFn(caller, account, ciphertext, proof)
}

func (f *fakeVaultService) AdminTransfer(_ context.Context, caller, newAdmin string) error {
	if f.adminTransferFn == nil {
		return nil
	}
	return f.adminTransferFn(caller, newAdmin)
}

func (f *fakeVaultService) GuardedReadAndDecrypt(_ context.Context, subject, valueID, condID string) ([]byte, error) {
	if f.readFn == nil {
		return nil, nil
	}
	return f.readFn(subject, valueID, condID)
}

func (f *fakeVaultService) ProvisionRead(_ context.Context, caller, subject, valueID, condID string) (models.Handle, error) {
	if f.provisionReadFn == nil {
		return models.Handle{}, nil
	}
	return f.provisionReadFn(caller, subject, valueID, condID)
}

func (f *fakeVaultService) ReadPersistent(_ context.Context, subject, valueID, condID string) (models.Handle, error) {
	if f.readPersistFn == nil {
		return models.Handle{}, nil
	}
	return f.readPersistFn(subject, valueID, condID)
}

func (f *fakeVaultService) SetPersistentAccess(_ context.Context, caller, valueID, account string, allowed bool) error {
	if f.setPersistFn == nil {
		return nil
	}
	return f.setPersistFn(caller, valueID, account, allowed)
}

// newRequest builds a request with the subject identity and the chi
// route parameter "id" attached, as the middleware and router would.
func newRequest(method, target, subject, handleID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := middleware.WithSubject(req.Context(), subject)
	if handleID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", handleID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestImport_BadJSON(t *testing.T) {
	h := &handler.HandlesHandler{Vault: &fakeVaultService{}}
	req := httptest.NewRequest(http.MethodPost, "/api/handles/import", bytes.NewBufferString("not-a-json"))
	req = req.WithContext(middleware.WithSubject(req.Context(), "alice"))
	w := httptest.NewRecorder()

	h.Import(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestImport_Success(t *testing.T) {
	fake := &fakeVaultService{
		importFn: func(subject string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error) {
			if subject != "alice" {
				t.Errorf("subject = %q; want alice", subject)
			}
			if tag != models.TypeUint64 {
				t.Errorf("tag = %q; want %q", tag, models.TypeUint64)
			}
			return models.Handle{ID: "h1", Type: tag, Context: "ctx"}, nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"ciphertext": []byte{1, 2}, "type": models.TypeUint64, "proof": []byte{3}}
	w := httptest.NewRecorder()

	h.Import(w, newRequest(http.MethodPost, "/api/handles/import", "alice", "", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var got models.Handle
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "h1" {
		t.Errorf("handle id = %q; want h1", got.ID)
	}
}

func TestImport_ProofError(t *testing.T) {
	fake := &fakeVaultService{
		importFn: func(string, []byte, models.TypeTag, []byte) (models.Handle, error) {
			return models.Handle{}, fmt.Errorf("import: %w", models.ErrProofVerification)
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"ciphertext": []byte{1}, "type": models.TypeUint64, "proof": []byte{2}}
	w := httptest.NewRecorder()

	h.Import(w, newRequest(http.MethodPost, "/api/handles/import", "alice", "", body))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d; want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestGrant_InvalidKind(t *testing.T) {
	h := &handler.HandlesHandler{Vault: &fakeVaultService{}}
	body := map[string]any{"subject": "bob", "kind": "forever"}
	w := httptest.NewRecorder()

	h.Grant(w, newRequest(http.MethodPost, "/api/handles/h1/grant", "alice", "h1", body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGrant_Forwarded(t *testing.T) {
	var gotCaller, gotHandle, gotSubject string
	var gotKind models.GrantKind
	fake := &fakeVaultService{
		grantFn: func(caller, handleID, subject string, kind models.GrantKind) error {
			gotCaller, gotHandle, gotSubject, gotKind = caller, handleID, subject, kind
			return nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"subject": "bob", "kind": models.Persistent}
	w := httptest.NewRecorder()

	h.Grant(w, newRequest(http.MethodPost, "/api/handles/h1/grant", "alice", "h1", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if gotCaller != "alice" || gotHandle != "h1" || gotSubject != "bob" || gotKind != models.Persistent {
		t.Errorf("forwarded (%s, %s, %s, %s); want (alice, h1, bob, persistent)",
			gotCaller, gotHandle, gotSubject, gotKind)
	}
}

func TestGrant_AuthorizationError(t *testing.T) {
	fake := &fakeVaultService{
		grantFn: func(string, string, string, models.GrantKind) error {
			return fmt.Errorf("grant: %w", models.ErrAuthorization)
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"subject": "bob", "kind": models.Transient}
	w := httptest.NewRecorder()

	h.Grant(w, newRequest(http.MethodPost, "/api/handles/h1/grant", "mallory", "h1", body))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d; want %d", w.Code, http.StatusForbidden)
	}
}

func TestAccess_DefaultsToCaller(t *testing.T) {
	var gotSubject string
	fake := &fakeVaultService{
		accessFn: func(handleID, subject string) (bool, error) {
			gotSubject = subject
			return true, nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	w := httptest.NewRecorder()

	h.Access(w, newRequest(http.MethodGet, "/api/handles/h1/access", "alice", "h1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if gotSubject != "alice" {
		t.Errorf("subject = %q; want the caller", gotSubject)
	}
	var resp map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["allowed"] {
		t.Error("allowed = false; want true")
	}
}

func TestAccess_ExplicitSubject(t *testing.T) {
	var gotSubject string
	fake := &fakeVaultService{
		accessFn: func(handleID, subject string) (bool, error) {
			gotSubject = subject
			return false, nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	w := httptest.NewRecorder()

	h.Access(w, newRequest(http.MethodGet, "/api/handles/h1/access?subject=bob", "alice", "h1", nil))

	if gotSubject != "bob" {
		t.Errorf("subject = %q; want bob", gotSubject)
	}
}

func TestTypeTag_UnknownHandle(t *testing.T) {
	fake := &fakeVaultService{
		typeTagFn: func(string) (models.TypeTag, error) {
			return "", fmt.Errorf("type of: %w", models.ErrUnknownHandle)
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	w := httptest.NewRecorder()

	h.TypeTag(w, newRequest(http.MethodGet, "/api/handles/nope/type", "alice", "nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestRead_ReturnsCleartext(t *testing.T) {
	fake := &fakeVaultService{
		readFn: func(subject, valueID, condID string) ([]byte, error) {
			if subject != "bob" || valueID != "h1" || condID != "" {
				t.Errorf("read (%s, %s, %s); want (bob, h1, )", subject, valueID, condID)
			}
			return []byte{0, 0, 0, 0, 0, 0, 0, 42}, nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"value": "h1"}
	w := httptest.NewRecorder()

	h.Read(w, newRequest(http.MethodPost, "/api/read", "bob", "", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp map[string][]byte
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp["cleartext"]) != 8 || resp["cleartext"][7] != 42 {
		t.Errorf("cleartext = %v; want 42 encoded", resp["cleartext"])
	}
}

func TestRead_MissingValue(t *testing.T) {
	h := &handler.HandlesHandler{Vault: &fakeVaultService{}}
	w := httptest.NewRecorder()

	h.Read(w, newRequest(http.MethodPost, "/api/read", "bob", "", map[string]any{"condition": "c1"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProvisionRead_Forwarded(t *testing.T) {
	var gotCaller, gotSubject, gotValue string
	fake := &fakeVaultService{
		provisionReadFn: func(caller, subject, valueID, condID string) (models.Handle, error) {
			gotCaller, gotSubject, gotValue = caller, subject, valueID
			return models.Handle{ID: "h2", Type: models.TypeUint64}, nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"subject": "bob", "value": "h1"}
	w := httptest.NewRecorder()

	h.ProvisionRead(w, newRequest(http.MethodPost, "/api/read/provision", "admin", "", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if gotCaller != "admin" || gotSubject != "bob" || gotValue != "h1" {
		t.Errorf("forwarded (%s, %s, %s); want (admin, bob, h1)", gotCaller, gotSubject, gotValue)
	}
	var got models.Handle
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "h2" {
		t.Errorf("handle id = %q; want h2", got.ID)
	}
}

func TestProvisionRead_MissingSubject(t *testing.T) {
	h := &handler.HandlesHandler{Vault: &fakeVaultService{}}
	w := httptest.NewRecorder()

	h.ProvisionRead(w, newRequest(http.MethodPost, "/api/read/provision", "admin", "", map[string]any{"value": "h1"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSetPersistentAccess_Forwarded(t *testing.T) {
	var gotAllowed bool
	fake := &fakeVaultService{
		setPersistFn: func(caller, valueID, account string, allowed bool) error {
			gotAllowed = allowed
			return nil
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"value": "h1", "account": "bob", "allowed": false}
	w := httptest.NewRecorder()

	h.SetPersistentAccess(w, newRequest(http.MethodPost, "/api/access/persistent", "admin", "", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if gotAllowed {
		t.Error("allowed = true; want false forwarded")
	}
}

func TestAdminTransfer_Forbidden(t *testing.T) {
	fake := &fakeVaultService{
		adminTransferFn: func(string, string) error {
			return fmt.Errorf("admin transfer: %w", models.ErrAuthorization)
		},
	}
	h := &handler.HandlesHandler{Vault: fake}
	body := map[string]any{"new_admin": "bob"}
	w := httptest.NewRecorder()

	h.AdminTransfer(w, newRequest(http.MethodPost, "/api/admin/transfer", "mallory", "", body))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d; want %d", w.Code, http.StatusForbidden)
	}
}

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/returnlab/portal/internal/apperr"
	"github.com/returnlab/portal/internal/blob"
	"github.com/returnlab/portal/internal/orders"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/returns"
	"github.com/returnlab/portal/internal/server"
	"github.com/returnlab/portal/internal/stores"
)

const testAdminToken = "test-admin-token"

type fakeAggregator struct {
	result *orders.SearchResult
	err    error
}

func (f *fakeAggregator) Search(ctx context.Context, email string) (*orders.SearchResult, error) {
	return f.result, f.err
}

type fakeReturnService struct {
	createID      uuid.UUID
	createErr     error
	transitioned  *repository.ReturnRequest
	transitionErr error
	listResult    *returns.ListResult
	listErr       error
	history       []*repository.AdminAction
	historyErr    error
	customerReq   *repository.ReturnRequest
	customerErr   error
	auditStatus   string

	lastAction string
	lastNotes  string
}

func (f *fakeReturnService) Create(ctx context.Context, payload *returns.CreatePayload) (uuid.UUID, error) {
	return f.createID, f.createErr
}

func (f *fakeReturnService) Transition(ctx context.Context, id uuid.UUID, action, notes string) (*repository.ReturnRequest, error) {
	f.lastAction = action
	f.lastNotes = notes
	return f.transitioned, f.transitionErr
}

func (f *fakeReturnService) List(ctx context.Context, filter repository.ListFilter) (*returns.ListResult, error) {
	return f.listResult, f.listErr
}

func (f *fakeReturnService) History(ctx context.Context, id uuid.UUID) ([]*repository.AdminAction, error) {
	return f.history, f.historyErr
}

func (f *fakeReturnService) GetForCustomer(ctx context.Context, id uuid.UUID, email string) (*repository.ReturnRequest, error) {
	return f.customerReq, f.customerErr
}

func (f *fakeReturnService) GetForAudit(ctx context.Context, id uuid.UUID) (string, error) {
	return f.auditStatus, nil
}

type fakeStoreService struct {
	views     []*stores.View
	created   *stores.View
	createErr error
	updated   *stores.View
	updateErr error
	deleteErr error
}

func (f *fakeStoreService) List(ctx context.Context) ([]*stores.View, error) {
	return f.views, nil
}

func (f *fakeStoreService) Create(ctx context.Context, name, domain, token string) (*stores.View, error) {
	return f.created, f.createErr
}

func (f *fakeStoreService) Update(ctx context.Context, id uuid.UUID, patch stores.UpdatePayload) (*stores.View, error) {
	return f.updated, f.updateErr
}

func (f *fakeStoreService) Delete(ctx context.Context, id uuid.UUID) error {
	return f.deleteErr
}

type fakeOAuthService struct {
	authURL     string
	connectErr  error
	callbackURL string
}

func (f *fakeOAuthService) Connect(domain, clientID, clientSecret, storeName string) (string, error) {
	return f.authURL, f.connectErr
}

func (f *fakeOAuthService) Callback(ctx context.Context, code, shop, state string) string {
	return f.callbackURL
}

type fakeStoreGetter struct {
	store *repository.Store
}

func (f *fakeStoreGetter) GetByID(ctx context.Context, id uuid.UUID) (*repository.Store, error) {
	if f.store == nil {
		return nil, repository.ErrObjectNotFound
	}
	return f.store, nil
}

type recordingSink struct {
	entries chan server.AuditLogEntry
}

func (s *recordingSink) Persist(ctx context.Context, batch []server.AuditLogEntry) error {
	for _, entry := range batch {
		s.entries <- entry
	}
	return nil
}

type testEnv struct {
	server  *server.Server
	returns *fakeReturnService
	stores  *fakeStoreService
	oauth   *fakeOAuthService
	agg     *fakeAggregator
	getter  *fakeStoreGetter
	sink    *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)

	files, err := blob.NewFileStore(t.TempDir(), "http://localhost:9000")
	require.NoError(t, err)

	env := &testEnv{
		returns: &fakeReturnService{},
		stores:  &fakeStoreService{},
		oauth:   &fakeOAuthService{},
		agg:     &fakeAggregator{},
		getter:  &fakeStoreGetter{},
		sink:    &recordingSink{entries: make(chan server.AuditLogEntry, 16)},
	}

	audit := server.NewAuditManager(1, 1, 50*time.Millisecond, env.sink, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	audit.Start(ctx)

	env.server = server.New(
		env.agg,
		env.returns,
		env.stores,
		env.oauth,
		env.getter,
		files,
		audit,
		string(hash),
		zap.NewNop(),
	)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}

	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)
	env.returns.listResult = &returns.ListResult{Returns: []*repository.ReturnRequestWithStore{}}

	t.Run("no token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/returns", nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/returns", nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/returns", nil, true)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("customer surface needs no token", func(t *testing.T) {
		env.agg.result = &orders.SearchResult{Orders: nil}
		w := env.do(t, http.MethodGet, "/api/orders/search?email=jane@example.com", nil, false)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHandleOrderSearch(t *testing.T) {
	env := newTestEnv(t)

	t.Run("validation error maps to 400", func(t *testing.T) {
		env.agg.err = apperr.Validation("invalid email format")
		w := env.do(t, http.MethodGet, "/api/orders/search?email=bad", nil, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("results pass through", func(t *testing.T) {
		env.agg.err = nil
		env.agg.result = &orders.SearchResult{Total: 2}
		w := env.do(t, http.MethodGet, "/api/orders/search?email=jane@example.com", nil, false)
		require.Equal(t, http.StatusOK, w.Code)

		var body orders.SearchResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Total)
	})
}

func TestHandleCreateReturn(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created", func(t *testing.T) {
		env.returns.createID = uuid.MustParse("a1b2c3d4-0000-0000-0000-000000000000")
		w := env.do(t, http.MethodPost, "/api/returns", map[string]string{"store_id": "x"}, false)
		require.Equal(t, http.StatusCreated, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "A1B2C3D4", body["reference_number"])
		assert.Equal(t, repository.StatusPending, body["status"])
	})

	t.Run("conflict carries existing status", func(t *testing.T) {
		env.returns.createErr = apperr.Conflict("return request already exists for this order", repository.StatusReviewing)
		w := env.do(t, http.MethodPost, "/api/returns", map[string]string{}, false)
		require.Equal(t, http.StatusConflict, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, repository.StatusReviewing, body["existing_status"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/returns", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleReturnAction(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	t.Run("applies the transition", func(t *testing.T) {
		env.returns.transitioned = &repository.ReturnRequest{
			ID:     id,
			Status: repository.StatusApprovedRefund,
		}

		w := env.do(t, http.MethodPost, "/api/returns/"+id.String()+"/action",
			map[string]string{"action": "approve_refund", "notes": "ok"}, true)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "approve_refund", env.returns.lastAction)
		assert.Equal(t, "ok", env.returns.lastNotes)
	})

	t.Run("unparseable id is a 404", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/returns/not-a-uuid/action",
			map[string]string{"action": "deny"}, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid action maps to 400", func(t *testing.T) {
		env.returns.transitionErr = apperr.Validation("invalid action")
		w := env.do(t, http.MethodPost, "/api/returns/"+id.String()+"/action",
			map[string]string{"action": "escalate"}, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.returns.transitionErr = nil
	})

	t.Run("audit entry is recorded", func(t *testing.T) {
		env.returns.auditStatus = repository.StatusPending
		env.returns.transitioned = &repository.ReturnRequest{ID: id, Status: repository.StatusDenied}

		w := env.do(t, http.MethodPost, "/api/returns/"+id.String()+"/action",
			map[string]string{"action": "deny"}, true)
		require.Equal(t, http.StatusOK, w.Code)

		// Earlier subtests also produced audit entries; scan until ours shows up.
		deadline := time.After(2 * time.Second)
		for {
			select {
			case entry := <-env.sink.entries:
				if entry.Action != "deny" {
					continue
				}
				assert.Equal(t, "handleReturnAction", entry.Handler)
				assert.Equal(t, http.StatusOK, entry.StatusCode)
				assert.Contains(t, entry.Response, repository.StatusDenied)
				assert.Equal(t, id.String(), entry.ReturnID)
				assert.Equal(t, repository.StatusPending, entry.OldStatus)
				assert.Equal(t, repository.StatusDenied, entry.NewStatus)
				return
			case <-deadline:
				t.Fatal("no audit entry arrived")
			}
		}
	})
}

func TestHandleUpload(t *testing.T) {
	env := newTestEnv(t)

	upload := func(t *testing.T, field, filename, contentType string, content []byte) *httptest.ResponseRecorder {
		t.Helper()

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		return w
	}

	t.Run("accepts an image", func(t *testing.T) {
		w := upload(t, "file", "photo.png", "image/png", []byte("png-bytes"))
		require.Equal(t, http.StatusCreated, w.Code)

		var stored blob.StoredFile
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
		assert.Contains(t, stored.URL, "/uploads/returns/")
	})

	t.Run("rejects a disallowed type", func(t *testing.T) {
		w := upload(t, "file", "notes.txt", "text/plain", []byte("hi"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("kind", "image"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("accepts a raw body with a filename hint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("png-bytes"))
		req.Header.Set("Content-Type", "image/png")
		req.Header.Set("X-Filename", "photo.png")
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)

		var stored blob.StoredFile
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
		assert.Contains(t, stored.URL, "/uploads/returns/")
		assert.Contains(t, stored.Key, "photo.png")
	})

	t.Run("raw body document slot via query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload?kind=document", bytes.NewBufferString("%PDF-1.4"))
		req.Header.Set("Content-Type", "application/pdf")
		req.Header.Set("X-Filename", "invoice.pdf")
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("raw body with a disallowed type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("hello"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized form rejected", func(t *testing.T) {
		w := upload(t, "file", "big.png", "image/png", bytes.Repeat([]byte("a"), 13<<20))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleReturnHistory(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	t.Run("lists the actions", func(t *testing.T) {
		notes := "no receipt"
		env.returns.history = []*repository.AdminAction{
			{ID: 1, ReturnRequestID: id, Action: "reviewing"},
			{ID: 2, ReturnRequestID: id, Action: "deny", Notes: &notes},
		}

		w := env.do(t, http.MethodGet, "/api/returns/"+id.String()+"/actions", nil, true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "deny")
	})

	t.Run("requires admin", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/returns/"+id.String()+"/actions", nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unparseable id is a 404", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/returns/not-a-uuid/actions", nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		env.returns.history = nil
		env.returns.historyErr = apperr.NotFound("return request")
		defer func() { env.returns.historyErr = nil }()

		w := env.do(t, http.MethodGet, "/api/returns/"+id.String()+"/actions", nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleReceipt(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	env.returns.customerReq = &repository.ReturnRequest{
		ID:            id,
		StoreID:       uuid.New(),
		CustomerEmail: "jane@example.com",
		Status:        repository.StatusPending,
		CreatedAt:     time.Now(),
		FormData:      []byte(`{"schema_version":1}`),
	}
	env.getter.store = &repository.Store{Name: "Acme"}

	t.Run("get renders html", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/returns/receipt?id="+id.String()+"&email=jane@example.com", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "return-receipt-")
		assert.Contains(t, w.Body.String(), "Acme")
	})

	t.Run("wrong email is a 404", func(t *testing.T) {
		env.returns.customerErr = apperr.NotFound("return request")
		defer func() { env.returns.customerErr = nil }()

		w := env.do(t, http.MethodGet, "/api/returns/receipt?id="+id.String()+"&email=other@example.com", nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("post body works too", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/returns/receipt",
			map[string]string{"id": id.String(), "customer_email": "jane@example.com"}, false)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestStoreHandlers(t *testing.T) {
	env := newTestEnv(t)

	t.Run("create", func(t *testing.T) {
		env.stores.created = &stores.View{ID: uuid.New(), Name: "Acme"}
		w := env.do(t, http.MethodPost, "/api/stores",
			map[string]string{"name": "Acme", "storefront_domain": "acme", "storefront_token": "shpat"}, true)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("delete conflict when referenced", func(t *testing.T) {
		env.stores.deleteErr = apperr.Conflict("store has return requests; deactivate it instead of deleting", "")
		defer func() { env.stores.deleteErr = nil }()

		w := env.do(t, http.MethodDelete, "/api/stores/"+uuid.NewString(), nil, true)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("update with bad id", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/stores/nope", map[string]string{}, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOAuthHandlers(t *testing.T) {
	env := newTestEnv(t)

	t.Run("connect returns the auth url", func(t *testing.T) {
		env.oauth.authURL = "https://acme.myshopify.com/admin/oauth/authorize?x=y"
		w := env.do(t, http.MethodPost, "/api/shopify/connect",
			map[string]string{"domain": "acme", "client_id": "id", "client_secret": "secret"}, true)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, env.oauth.authURL, body["auth_url"])
	})

	t.Run("connect requires admin", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/shopify/connect", map[string]string{}, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("callback always redirects", func(t *testing.T) {
		env.oauth.callbackURL = "http://localhost:9000/admin?setup_error=invalid_state"
		w := env.do(t, http.MethodGet, "/api/shopify/callback?code=c&shop=s&state=bad", nil, false)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, env.oauth.callbackURL, w.Header().Get("Location"))
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/makerledger/internal/auth"
	"github.com/erazemk/makerledger/internal/bom"
	"github.com/erazemk/makerledger/internal/db"
	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/namematch"
	"github.com/erazemk/makerledger/internal/store"
)

const testJWTSecret = "test-secret"

type fakeProjects map[string][]model.BOMItem

func (p fakeProjects) BOM(_ context.Context, id string) ([]model.BOMItem, error) {
	items, ok := p[id]
	if !ok {
		return nil, model.Errorf(model.ErrProjectNotFound, "project %s not found", id)
	}
	return items, nil
}

// offlinePart makes fakeMapper behave like an unreachable catalog.
const offlinePart = "catalog offline"

type fakeMapper map[string]string

func (m fakeMapper) LookupSKU(_ context.Context, code, name string) (string, error) {
	if name == offlinePart {
		return "", model.ErrCatalogUnavailable
	}
	if sku, ok := m[code]; ok && code != "" {
		return sku, nil
	}
	return m[name], nil
}

type fakeCart struct{}

func (fakeCart) AddToCart(_ context.Context, line bom.CartLine) (bom.CartReceipt, error) {
	return bom.CartReceipt{CartURL: "https://shop.example/cart/" + line.ProjectID}, nil
}

type testServer struct {
	*httptest.Server
	db    *sqlx.DB
	token string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	projects := fakeProjects{
		"proj-1": {
			{ID: "b1", PartName: "Arduino Uno", PartCode: "A000066", QuantityNeeded: decimal.NewFromInt(1), Source: "makrx"},
			{ID: "b2", PartName: "Jumper wires", QuantityNeeded: decimal.NewFromInt(20), Source: "makrx"},
			{ID: "b3", PartName: "Unobtainium", QuantityNeeded: decimal.NewFromInt(1), Source: "external"},
		},
		"proj-offline": {
			{ID: "b1", PartName: offlinePart, QuantityNeeded: decimal.NewFromInt(1), Source: "makrx"},
		},
	}
	mapper := fakeMapper{"A000066": "A000066", "Jumper wires": "SKU-JW-20"}

	router := NewRouter(Deps{
		DB:          database,
		JWTSecret:   testJWTSecret,
		Revocations: store.NewRevocations(database),
		Accounts:    store.NewAccounts(database),
		Ledger:      ledger.New(store.NewItems(database)),
		Images:      store.NewSQLImages(database),
		BOM: &bom.Service{
			Projects: projects,
			Mapper:   mapper,
			Executor: &bom.Executor{Cart: fakeCart{}, Concurrency: 2, ItemTimeout: time.Second},
		},
		DuplicateThreshold: namematch.DefaultThreshold,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user.
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), database, "admin", string(hash), model.RoleAdmin, nil); err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp loginResponse
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}

	return &testServer{Server: server, db: database, token: loginResp.Token}
}

// tokenFor creates a user and returns a token for it.
func (s *testServer) tokenFor(t *testing.T, username, role string, makerspaces ...string) (string, *model.User) {
	t.Helper()
	user, err := store.CreateUser(context.Background(), s.db, username, "x", role, makerspaces)
	if err != nil {
		t.Fatalf("creating %s: %v", username, err)
	}
	token, err := auth.GenerateToken(testJWTSecret, *user)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token, user
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func itemBody(name, qty, min string) map[string]any {
	return map[string]any{
		"name":          name,
		"category":      model.CategoryFilament,
		"quantity":      qty,
		"unit":          "kg",
		"min_threshold": min,
		"location":      "Shelf A",
		"supplier_type": model.SupplierMakrX,
		"makerspace_id": "ms-1",
	}
}

func (s *testServer) createItem(t *testing.T, name, qty, min string) model.Item {
	t.Helper()
	resp := s.do(t, "POST", "/inventory/", s.token, itemBody(name, qty, min))
	expectStatus(t, resp, http.StatusCreated)
	var item model.Item
	decodeBody(t, resp, &item)
	return item
}

func TestLoginEndpoint(t *testing.T) {
	s := setupTestServer(t)

	// Test invalid credentials.
	resp := s.do(t, "POST", "/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "nobody", "password": "password"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "admin"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHealthIsPublic(t *testing.T) {
	s := setupTestServer(t)
	resp := s.do(t, "GET", "/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestUnauthenticatedAccess(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{"/inventory", "/inventory/low-stock", "/users", "/projects/proj-1/bom/export/preview"} {
		resp := s.do(t, "GET", path, "", nil)
		expectStatus(t, resp, http.StatusUnauthorized)
	}

	resp := s.do(t, "GET", "/inventory", "not-a-jwt", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "POST", "/auth/logout", s.token, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "GET", "/inventory", s.token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "PUT", "/auth/password", s.token, map[string]string{
		"current_password": "wrong", "new_password": "newpassword",
	})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = s.do(t, "PUT", "/auth/password", s.token, map[string]string{
		"current_password": "password", "new_password": "short",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "PUT", "/auth/password", s.token, map[string]string{
		"current_password": "password", "new_password": "newpassword",
	})
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "admin", "password": "newpassword"})
	expectStatus(t, resp, http.StatusOK)
}

func TestIssueFlow(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "PLA black", "5", "3")

	resp := s.do(t, "POST", "/inventory/"+item.ID+"/issue", s.token, map[string]any{
		"quantity": 2, "reason": "printing", "project_id": "proj-X",
	})
	expectStatus(t, resp, http.StatusOK)
	var issued struct {
		RemainingQuantity decimal.Decimal     `json:"remaining_quantity"`
		Entry             model.UsageLogEntry `json:"entry"`
	}
	decodeBody(t, resp, &issued)
	if !issued.RemainingQuantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected remaining 3, got %s", issued.RemainingQuantity)
	}
	if issued.Entry.LinkedProjectID != "proj-X" || issued.Entry.Action != model.ActionIssue {
		t.Errorf("unexpected entry: %+v", issued.Entry)
	}

	resp = s.do(t, "GET", "/inventory/"+item.ID+"/history", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var history []model.UsageLogEntry
	decodeBody(t, resp, &history)
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if !history[0].QuantityBefore.Equal(decimal.NewFromInt(5)) || !history[0].QuantityAfter.Equal(decimal.NewFromInt(3)) {
		t.Errorf("unexpected entry quantities: %s -> %s", history[0].QuantityBefore, history[0].QuantityAfter)
	}

	resp = s.do(t, "GET", "/inventory/low-stock", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var low []model.Item
	decodeBody(t, resp, &low)
	if len(low) != 1 || low[0].ID != item.ID {
		t.Errorf("expected item in low-stock set, got %+v", low)
	}

	resp = s.do(t, "GET", "/inventory/"+item.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var got struct {
		Item model.Item `json:"item"`
	}
	decodeBody(t, resp, &got)
	if len(got.Item.History) != 1 {
		t.Errorf("expected history embedded in item, got %d entries", len(got.Item.History))
	}
}

func TestIssueInsufficientStock(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "PLA black", "5", "3")

	resp := s.do(t, "POST", "/inventory/"+item.ID+"/issue", s.token, map[string]any{"quantity": 10})
	expectStatus(t, resp, http.StatusConflict)
	var errBody map[string]string
	decodeBody(t, resp, &errBody)
	if errBody["code"] != "insufficient_stock" {
		t.Errorf("expected insufficient_stock code, got %q", errBody["code"])
	}

	resp = s.do(t, "GET", "/inventory/"+item.ID+"/history", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var history []model.UsageLogEntry
	decodeBody(t, resp, &history)
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d entries", len(history))
	}

	resp = s.do(t, "POST", "/inventory/"+item.ID+"/issue", s.token, map[string]any{"quantity": 0})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "POST", "/inventory/missing/issue", s.token, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestStockOperations(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "Resin", "10", "2")
	path := "/inventory/" + item.ID

	tests := []struct {
		op   string
		body map[string]any
		key  string
		want string
	}{
		{"restock", map[string]any{"quantity": "2.5", "reason": "order"}, "new_quantity", "12.5"},
		{"stock", map[string]any{"quantity": 1}, "quantity", "13.5"},
		{"adjust", map[string]any{"delta": "-0.5", "reason": "count"}, "quantity", "13"},
		{"damage", map[string]any{"quantity": 1, "reason": "spilled"}, "quantity", "12"},
		{"transfer", map[string]any{"quantity": 2, "destination": "Lab B"}, "quantity", "10"},
	}
	for _, tt := range tests {
		resp := s.do(t, "POST", path+"/"+tt.op, s.token, tt.body)
		expectStatus(t, resp, http.StatusOK)
		var out map[string]json.RawMessage
		decodeBody(t, resp, &out)
		var got decimal.Decimal
		if err := json.Unmarshal(out[tt.key], &got); err != nil {
			t.Fatalf("%s: missing %s in response: %v", tt.op, tt.key, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s: expected %s=%s, got %s", tt.op, tt.key, tt.want, got)
		}
	}

	resp := s.do(t, "GET", path+"/history", s.token, nil)
	var history []model.UsageLogEntry
	decodeBody(t, resp, &history)
	if len(history) != len(tests) {
		t.Fatalf("expected %d entries, got %d", len(tests), len(history))
	}
	if history[4].Action != model.ActionTransfer || history[4].Reason != "transfer to Lab B" {
		t.Errorf("unexpected transfer entry: %+v", history[4])
	}
	if history[1].Action != model.ActionAdd {
		t.Errorf("expected add action for stock, got %s", history[1].Action)
	}

	// Adjusting below zero is refused.
	resp = s.do(t, "POST", path+"/adjust", s.token, map[string]any{"delta": -100})
	expectStatus(t, resp, http.StatusConflict)
}

func TestUpdateItem(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "PLA black", "5", "3")

	resp := s.do(t, "PUT", "/inventory/"+item.ID, s.token, map[string]any{"quantity": 50})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "PUT", "/inventory/"+item.ID, s.token, map[string]any{"status": "bogus"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "PUT", "/inventory/"+item.ID, s.token, map[string]any{
		"location": "Shelf B", "status": model.ItemStatusReserved,
	})
	expectStatus(t, resp, http.StatusOK)
	var updated model.Item
	decodeBody(t, resp, &updated)
	if updated.Location != "Shelf B" || updated.Status != model.ItemStatusReserved {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("quantity changed by update: %s", updated.Quantity)
	}

	// Reserved items cannot be issued.
	resp = s.do(t, "POST", "/inventory/"+item.ID+"/issue", s.token, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusConflict)
}

func TestDeleteItem(t *testing.T) {
	s := setupTestServer(t)
	fresh := s.createItem(t, "Fresh", "1", "0")
	used := s.createItem(t, "Used", "5", "0")

	resp := s.do(t, "POST", "/inventory/"+used.ID+"/issue", s.token, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "DELETE", "/inventory/"+fresh.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["outcome"] != string(model.DeletePurged) {
		t.Errorf("expected purged, got %q", out["outcome"])
	}
	resp = s.do(t, "GET", "/inventory/"+fresh.ID, s.token, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = s.do(t, "DELETE", "/inventory/"+used.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &out)
	if out["outcome"] != string(model.DeleteArchived) {
		t.Errorf("expected archived, got %q", out["outcome"])
	}

	// Archived history stays readable.
	resp = s.do(t, "GET", "/inventory/"+used.ID+"/history", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var history []model.UsageLogEntry
	decodeBody(t, resp, &history)
	if len(history) != 1 {
		t.Errorf("expected 1 entry after archive, got %d", len(history))
	}

	resp = s.do(t, "GET", "/inventory", s.token, nil)
	var items []model.Item
	decodeBody(t, resp, &items)
	if len(items) != 0 {
		t.Errorf("expected no live items, got %d", len(items))
	}
}

func TestPolicyEnforcement(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "PLA black", "5", "3")

	viewer, _ := s.tokenFor(t, "viewer", model.RoleViewer, "ms-1")
	outsider, _ := s.tokenFor(t, "outsider", model.RoleViewer, "ms-2")
	member, memberUser := s.tokenFor(t, "member", model.RoleMember, "ms-1")

	// Viewers read within their makerspace only.
	resp := s.do(t, "GET", "/inventory/"+item.ID, viewer, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "POST", "/inventory/"+item.ID+"/issue", viewer, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusForbidden)
	resp = s.do(t, "GET", "/inventory/"+item.ID, outsider, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = s.do(t, "GET", "/inventory", outsider, nil)
	var items []model.Item
	decodeBody(t, resp, &items)
	if len(items) != 0 {
		t.Errorf("outsider sees %d items", len(items))
	}

	// Viewers cannot create items.
	resp = s.do(t, "POST", "/inventory/", viewer, itemBody("Nope", "1", "0"))
	expectStatus(t, resp, http.StatusForbidden)

	// Members own what they create and can issue from it.
	resp = s.do(t, "POST", "/inventory/", member, itemBody("My tools", "3", "0"))
	expectStatus(t, resp, http.StatusCreated)
	var own model.Item
	decodeBody(t, resp, &own)
	if own.OwnerUserID != memberUser.ID {
		t.Errorf("expected owner %s, got %q", memberUser.ID, own.OwnerUserID)
	}
	resp = s.do(t, "POST", "/inventory/"+own.ID+"/issue", member, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusOK)

	// Members cannot touch items they do not own.
	resp = s.do(t, "POST", "/inventory/"+item.ID+"/issue", member, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusNotFound)

	// Only user admins manage accounts; viewers cannot export.
	resp = s.do(t, "GET", "/users", viewer, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = s.do(t, "GET", "/projects/proj-1/bom/export/preview", viewer, nil)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestDuplicatesAndReport(t *testing.T) {
	s := setupTestServer(t)
	s.createItem(t, "PLA Filament Black", "5", "1")
	s.createItem(t, "Soldering iron", "2", "0")

	resp := s.do(t, "GET", "/inventory/duplicates?name=pla%20filament%20blak", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var matches []namematch.Match
	decodeBody(t, resp, &matches)
	if len(matches) != 1 || matches[0].Item.Name != "PLA Filament Black" {
		t.Errorf("unexpected matches: %+v", matches)
	}

	resp = s.do(t, "GET", "/inventory/duplicates", s.token, nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "GET", "/inventory/export.csv", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if lines := strings.Count(string(body), "\n"); lines != 3 {
		t.Errorf("expected 3 csv lines, got %d:\n%s", lines, body)
	}
}

func TestItemImage(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "Caliper", "1", "0")

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		img.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("image", "caliper.png")
	part.Write(pngData.Bytes())
	mw.Close()

	req, _ := http.NewRequest("PUT", s.URL+"/inventory/"+item.ID+"/image", &form)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	for _, path := range []string{"/image", "/image?thumb=1"} {
		resp := s.do(t, "GET", "/inventory/"+item.ID+path, s.token, nil)
		expectStatus(t, resp, http.StatusOK)
		if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("%s: expected image/jpeg, got %q", path, ct)
		}
	}

	other := s.createItem(t, "Ruler", "1", "0")
	resp2 := s.do(t, "GET", "/inventory/"+other.ID+"/image", s.token, nil)
	expectStatus(t, resp2, http.StatusNotFound)
}

func TestBOMExportEndpoints(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "GET", "/projects/proj-1/bom/export/preview", s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var preview struct {
		Items []model.ExportPreviewItem `json:"items"`
	}
	decodeBody(t, resp, &preview)
	if len(preview.Items) != 3 {
		t.Fatalf("expected 3 preview items, got %d", len(preview.Items))
	}
	exportable := []bool{preview.Items[0].Exportable, preview.Items[1].Exportable, preview.Items[2].Exportable}
	if !exportable[0] || !exportable[1] || exportable[2] {
		t.Errorf("unexpected exportability: %v", exportable)
	}

	resp = s.do(t, "GET", "/projects/missing/bom/export/preview", s.token, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = s.do(t, "POST", "/projects/proj-1/bom/export", s.token, map[string]any{
		"project_id": "proj-2", "selected_items": []string{"b1"}, "target_portal": "makrx",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "POST", "/projects/proj-1/bom/export", s.token, map[string]any{
		"selected_items": []string{}, "target_portal": "makrx",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, "POST", "/projects/proj-1/bom/export", s.token, map[string]any{
		"selected_items": []string{"b1", "b2", "b3"},
		"target_portal":  "makrx",
		"user_email":     "maker@example.com",
	})
	expectStatus(t, resp, http.StatusOK)
	var res model.ExportResult
	decodeBody(t, resp, &res)
	if !res.Success || res.ExportedItems != 2 || res.SkippedItems != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Details) != 3 {
		t.Fatalf("expected 3 details, got %d", len(res.Details))
	}
	if d := res.Details[2]; d.Status != model.ExportStatusNotExportable || d.Reason != model.ReasonNoSKUMapping {
		t.Errorf("unexpected third detail: %+v", d)
	}
}

func TestUserManagement(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "POST", "/users", s.token, map[string]any{
		"username": "maker", "password": "password1", "role": model.RoleMakerspaceAdmin,
		"makerspace_ids": []string{"ms-1"},
	})
	expectStatus(t, resp, http.StatusCreated)
	var created model.User
	decodeBody(t, resp, &created)
	if len(created.MakerspaceIDs) != 1 || created.MakerspaceIDs[0] != "ms-1" {
		t.Errorf("unexpected makerspaces: %v", created.MakerspaceIDs)
	}

	resp = s.do(t, "POST", "/users", s.token, map[string]any{
		"username": "maker", "password": "password1", "role": model.RoleMember,
	})
	expectStatus(t, resp, http.StatusConflict)

	resp = s.do(t, "POST", "/users", s.token, map[string]any{
		"username": "boss", "password": "password1", "role": model.RoleSuperAdmin,
	})
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, "PUT", "/users/"+created.ID, s.token, map[string]any{"makerspace_ids": []string{"ms-1", "ms-2"}})
	expectStatus(t, resp, http.StatusOK)
	var updated model.User
	decodeBody(t, resp, &updated)
	if updated.Role != model.RoleMakerspaceAdmin || len(updated.MakerspaceIDs) != 2 {
		t.Errorf("unexpected update result: %+v", updated)
	}

	resp = s.do(t, "PUT", "/users/"+created.ID+"/password", s.token, map[string]string{"password": "newpassword"})
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "maker", "password": "newpassword"})
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "DELETE", "/users/"+created.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "GET", "/users/"+created.ID, s.token, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestBOMExportCatalogUnavailable(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "GET", "/projects/proj-offline/bom/export/preview", s.token, nil)
	expectStatus(t, resp, http.StatusBadGateway)

	resp = s.do(t, "POST", "/projects/proj-offline/bom/export", s.token, map[string]any{
		"selected_items": []string{"b1", "b9"}, "target_portal": "makrx",
	})
	expectStatus(t, resp, http.StatusOK)
	var res model.ExportResult
	decodeBody(t, resp, &res)
	if res.Success || res.ExportedItems != 0 || res.SkippedItems != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(res.Details))
	}
	for _, d := range res.Details {
		if d.Status != model.ExportStatusFailed || d.Reason != "catalog service unavailable" {
			t.Errorf("unexpected detail: %+v", d)
		}
	}
}

func TestAdminCannotManageSuperAdmin(t *testing.T) {
	s := setupTestServer(t)
	_, root := s.tokenFor(t, "root", model.RoleSuperAdmin)

	resp := s.do(t, "PUT", "/users/"+root.ID+"/password", s.token, map[string]string{"password": "takeover1"})
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, "PUT", "/users/"+root.ID, s.token, map[string]any{"role": model.RoleMember})
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, "DELETE", "/users/"+root.ID, s.token, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = s.do(t, "GET", "/users/"+root.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var got model.User
	decodeBody(t, resp, &got)
	if got.Role != model.RoleSuperAdmin {
		t.Errorf("expected super_admin to be untouched, got %q", got.Role)
	}
}

func TestSuperAdminManagesAdmins(t *testing.T) {
	s := setupTestServer(t)
	rootToken, _ := s.tokenFor(t, "root", model.RoleSuperAdmin)
	_, other := s.tokenFor(t, "root2", model.RoleSuperAdmin)

	resp := s.do(t, "PUT", "/users/"+other.ID, rootToken, map[string]any{"role": model.RoleAdmin})
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "PUT", "/users/"+other.ID+"/password", rootToken, map[string]string{"password": "password2"})
	expectStatus(t, resp, http.StatusOK)

	resp = s.do(t, "POST", "/users", rootToken, map[string]any{
		"username": "root3", "password": "password3", "role": model.RoleSuperAdmin,
	})
	expectStatus(t, resp, http.StatusCreated)
}

func TestAccountChangesApplyToIssuedTokens(t *testing.T) {
	s := setupTestServer(t)
	item := s.createItem(t, "PLA white", "5", "1")

	token, user := s.tokenFor(t, "keeper", model.RoleMakerspaceAdmin, "ms-1")
	resp := s.do(t, "POST", "/inventory/"+item.ID+"/issue", token, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusOK)

	// Demotion takes effect on the token issued before it.
	resp = s.do(t, "PUT", "/users/"+user.ID, s.token, map[string]any{"role": model.RoleViewer})
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "POST", "/inventory/"+item.ID+"/issue", token, map[string]any{"quantity": 1})
	expectStatus(t, resp, http.StatusForbidden)

	// So does losing the makerspace assignment.
	resp = s.do(t, "PUT", "/users/"+user.ID, s.token, map[string]any{"makerspace_ids": []string{"ms-2"}})
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "GET", "/inventory/"+item.ID, token, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = s.do(t, "DELETE", "/users/"+user.ID, s.token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = s.do(t, "GET", "/inventory", token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

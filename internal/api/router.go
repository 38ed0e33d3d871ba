package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/makerledger/internal/bom"
	"github.com/erazemk/makerledger/internal/ledger"
)

// Deps are the collaborators the router wires into its handlers.
type Deps struct {
	DB                 *sqlx.DB
	JWTSecret          string
	Revocations        RevocationChecker
	Accounts           AccountSource
	Ledger             *ledger.Ledger
	Images             ImageStore
	BOM                *bom.Service
	DuplicateThreshold float64
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	inventoryHandler := &InventoryHandler{Ledger: d.Ledger, Images: d.Images, DuplicateThreshold: d.DuplicateThreshold}
	bomHandler := &BOMHandler{Service: d.BOM}

	authMW := AuthMiddleware(d.JWTSecret, d.Revocations, d.Accounts)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(RequireUserAdmin(h)) }

	// Public.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /auth/logout", authed(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /users", admin(usersHandler.List))
	mux.Handle("POST /users", admin(usersHandler.Create))
	mux.Handle("GET /users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /users/{id}", admin(usersHandler.Delete))

	// Inventory. Capabilities are checked per item by the handlers.
	mux.Handle("GET /inventory", authed(inventoryHandler.List))
	mux.Handle("POST /inventory", authed(inventoryHandler.Create))
	mux.Handle("POST /inventory/{$}", authed(inventoryHandler.Create))
	mux.Handle("GET /inventory/low-stock", authed(inventoryHandler.LowStock))
	mux.Handle("GET /inventory/duplicates", authed(inventoryHandler.Duplicates))
	mux.Handle("GET /inventory/export.csv", authed(inventoryHandler.ExportCSV))
	mux.Handle("GET /inventory/{id}", authed(inventoryHandler.Get))
	mux.Handle("PUT /inventory/{id}", authed(inventoryHandler.Update))
	mux.Handle("DELETE /inventory/{id}", authed(inventoryHandler.Delete))
	mux.Handle("GET /inventory/{id}/history", authed(inventoryHandler.History))
	mux.Handle("POST /inventory/{id}/issue", authed(inventoryHandler.Issue))
	mux.Handle("POST /inventory/{id}/restock", authed(inventoryHandler.Restock))
	mux.Handle("POST /inventory/{id}/stock", authed(inventoryHandler.AddStock))
	mux.Handle("POST /inventory/{id}/adjust", authed(inventoryHandler.Adjust))
	mux.Handle("POST /inventory/{id}/damage", authed(inventoryHandler.Damage))
	mux.Handle("POST /inventory/{id}/transfer", authed(inventoryHandler.Transfer))
	mux.Handle("PUT /inventory/{id}/image", authed(inventoryHandler.UploadImage))
	mux.Handle("GET /inventory/{id}/image", authed(inventoryHandler.GetImage))

	// BOM export.
	mux.Handle("GET /projects/{id}/bom/export/preview", authed(bomHandler.Preview))
	mux.Handle("POST /projects/{id}/bom/export", authed(bomHandler.Export))

	return mux
}

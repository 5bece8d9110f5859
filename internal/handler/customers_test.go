package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/handler"
)

// --- Mock store ---

type mockCustomerStore struct {
	customers map[uuid.UUID]database.Customer
}

func newMockCustomerStore() *mockCustomerStore {
	return &mockCustomerStore{customers: make(map[uuid.UUID]database.Customer)}
}

func (m *mockCustomerStore) GetCustomer(_ context.Context, id uuid.UUID) (database.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return database.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockCustomerStore) CreateCustomer(_ context.Context, arg database.CreateCustomerParams) (database.Customer, error) {
	// Email is unique when present
	for _, c := range m.customers {
		if arg.Email.Valid && c.Email.Valid && c.Email.String == arg.Email.String {
			return database.Customer{}, &pgconn.PgError{Code: "23505"}
		}
	}
	c := database.Customer{
		ID:        uuid.New(),
		Name:      arg.Name,
		Email:     arg.Email,
		Phone:     arg.Phone,
		CreatedAt: time.Now(),
	}
	m.customers[c.ID] = c
	return c, nil
}

func customerRouter(store *mockCustomerStore) http.Handler {
	h := handler.NewCustomerHandler(store)
	return authedRouter(func(r chi.Router) {
		r.Route("/customers", h.RegisterRoutes)
	})
}

// --- Tests ---

func TestCreateCustomer(t *testing.T) {
	store := newMockCustomerStore()
	router := customerRouter(store)
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)

	rr := doRequest(t, router, "POST", "/customers", map[string]string{
		"name":  "Fatima Al-Sabah",
		"email": "fatima@example.com",
	}, token)
	expectStatus(t, rr, http.StatusCreated)

	resp := decodeMap(t, rr)
	if resp["email"] != "fatima@example.com" {
		t.Errorf("email: got %v", resp["email"])
	}
	if resp["phone"] != nil {
		t.Errorf("phone: got %v, want null", resp["phone"])
	}
	if len(store.customers) != 1 {
		t.Fatalf("stored customers: got %d, want 1", len(store.customers))
	}
}

func TestCreateCustomer_Validation(t *testing.T) {
	router := customerRouter(newMockCustomerStore())
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)

	tests := []struct {
		name    string
		body    map[string]string
		wantMsg string
	}{
		{"missing name", map[string]string{"email": "a@example.com"}, "name is required"},
		{"no contact", map[string]string{"name": "A"}, "email or phone is required"},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email"}, "invalid email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/customers", tt.body, token)
			expectStatus(t, rr, http.StatusBadRequest)
			if msg := errorMessage(t, rr); msg != tt.wantMsg {
				t.Errorf("message: got %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestCreateCustomer_DuplicateEmail(t *testing.T) {
	router := customerRouter(newMockCustomerStore())
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)
	body := map[string]string{"name": "Yousef", "email": "yousef@example.com"}

	expectStatus(t, doRequest(t, router, "POST", "/customers", body, token), http.StatusCreated)
	expectStatus(t, doRequest(t, router, "POST", "/customers", body, token), http.StatusConflict)
}

func TestGetCustomer(t *testing.T) {
	store := newMockCustomerStore()
	router := customerRouter(store)
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)

	c, _ := store.CreateCustomer(context.Background(), database.CreateCustomerParams{
		Name:  "Noura",
		Phone: database.Text("+96550000003"),
	})

	rr := doRequest(t, router, "GET", "/customers/"+c.ID.String(), nil, token)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeMap(t, rr); resp["phone"] != "+96550000003" {
		t.Errorf("phone: got %v", resp["phone"])
	}

	expectStatus(t, doRequest(t, router, "GET", "/customers/"+uuid.New().String(), nil, token), http.StatusNotFound)
	expectStatus(t, doRequest(t, router, "GET", "/customers/nope", nil, token), http.StatusBadRequest)
}

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/TheMichaelB/possync/internal/models"
)

// AppliedMutation records one write the server accepted, in arrival order.
type AppliedMutation struct {
	Method string
	Path   string
	Body   []byte
}

// TestServer is an in-memory POS API for integration tests. It serves
// the entity routes the sync layer targets and can be switched into a
// failure mode that rejects every request.
type TestServer struct {
	*httptest.Server

	mu        sync.RWMutex
	products  map[string]models.Product
	customers map[string]models.Customer
	settings  *models.Settings
	orders    []models.Order
	applied   []AppliedMutation
	nextID    int
	failing   bool
}

// NewTestServer creates a POS API stub.
func NewTestServer() *TestServer {
	ts := &TestServer{
		products:  make(map[string]models.Product),
		customers: make(map[string]models.Customer),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/products", ts.handleProducts)
	mux.HandleFunc("/products/", ts.handleProduct)
	mux.HandleFunc("/customers", ts.handleCustomers)
	mux.HandleFunc("/customers/", ts.handleCustomer)
	mux.HandleFunc("/orders", ts.handleOrders)
	mux.HandleFunc("/settings", ts.handleSettings)

	ts.Server = httptest.NewServer(ts.withFailureMode(mux))
	return ts
}

// SetFailing toggles the failure mode.
func (ts *TestServer) SetFailing(failing bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failing = failing
}

// Applied returns accepted mutations in arrival order.
func (ts *TestServer) Applied() []AppliedMutation {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]AppliedMutation(nil), ts.applied...)
}

// SeedProducts installs catalog entries.
func (ts *TestServer) SeedProducts(products ...models.Product) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, p := range products {
		ts.products[p.ID] = p
	}
}

// Orders returns orders accepted so far.
func (ts *TestServer) Orders() []models.Order {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]models.Order(nil), ts.orders...)
}

func (ts *TestServer) withFailureMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.RLock()
		failing := ts.failing
		ts.mu.RUnlock()

		if failing {
			http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) record(r *http.Request, body []byte) {
	if r.Method == http.MethodGet {
		return
	}
	ts.applied = append(ts.applied, AppliedMutation{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   body,
	})
}

func (ts *TestServer) handleProducts(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		list := make([]models.Product, 0, len(ts.products))
		for _, p := range ts.products {
			list = append(list, p)
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var p models.Product
		body := decode(r, &p)
		if p.ID == "" {
			ts.nextID++
			p.ID = "p-srv-" + strconv.Itoa(ts.nextID)
		}
		ts.products[p.ID] = p
		ts.record(r, body)
		writeJSON(w, http.StatusCreated, p)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleProduct(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/products/")

	switch r.Method {
	case http.MethodPatch:
		var p models.Product
		body := decode(r, &p)
		p.ID = id
		ts.products[id] = p
		ts.record(r, body)
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		delete(ts.products, id)
		ts.record(r, nil)
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		list := make([]models.Customer, 0, len(ts.customers))
		for _, c := range ts.customers {
			list = append(list, c)
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var c models.Customer
		body := decode(r, &c)
		if c.ID == "" {
			ts.nextID++
			c.ID = "c-srv-" + strconv.Itoa(ts.nextID)
		}
		ts.customers[c.ID] = c
		ts.record(r, body)
		writeJSON(w, http.StatusCreated, c)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleCustomer(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/customers/")

	switch r.Method {
	case http.MethodPatch:
		var c models.Customer
		body := decode(r, &c)
		c.ID = id
		ts.customers[id] = c
		ts.record(r, body)
		writeJSON(w, http.StatusOK, c)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, append([]models.Order(nil), ts.orders...))

	case http.MethodPost:
		var o models.Order
		body := decode(r, &o)
		ts.nextID++
		o.ID = "o-srv-" + strconv.Itoa(ts.nextID)
		o.Status = "accepted"
		ts.orders = append(ts.orders, o)
		ts.record(r, body)
		writeJSON(w, http.StatusCreated, o)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if ts.settings == nil {
			writeJSON(w, http.StatusOK, models.Settings{})
			return
		}
		writeJSON(w, http.StatusOK, ts.settings)

	case http.MethodPatch:
		var s models.Settings
		body := decode(r, &s)
		ts.settings = &s
		ts.record(r, body)
		writeJSON(w, http.StatusOK, s)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func decode(r *http.Request, v interface{}) []byte {
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, v)
	return body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

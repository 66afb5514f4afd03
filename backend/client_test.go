package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerTokenHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(AdminStats{Users: 3})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", time.Second)
	stats, err := c.GetAdminStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, 3, stats.Users)
}

func TestNoTokenNoHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	require.NoError(t, c.Health(context.Background()))
	assert.Empty(t, gotAuth)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", time.Second)
	_, err := c.GetAdminStats(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Contains(t, statusErr.Body, "nope")
}

func TestProductCRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/products", func(w http.ResponseWriter, r *http.Request) {
		var p Product
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = "prod-1"
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Product{{ID: "prod-1", Name: "Bowl"}})
	})
	mux.HandleFunc("PUT /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p Product
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = r.PathValue("id")
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("DELETE /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL, "tok", time.Second)

	created, err := c.CreateProduct(ctx, Product{Name: "Bowl", Price: decimal.RequireFromString("12.50")})
	require.NoError(t, err)
	assert.Equal(t, "prod-1", created.ID)

	products, err := c.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)

	updated, err := c.UpdateProduct(ctx, Product{ID: "prod-1", Name: "Big Bowl"})
	require.NoError(t, err)
	assert.Equal(t, "Big Bowl", updated.Name)

	require.NoError(t, c.DeleteProduct(ctx, "prod-1"))
}

func TestUpdateUserProfile(t *testing.T) {
	var gotPath string
	var gotBody ProfileUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	err := c.UpdateUserProfile(context.Background(), "user-1", ProfileUpdate{Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "/api/users/user-1", gotPath)
	assert.Equal(t, "Ana", gotBody.Name)
}

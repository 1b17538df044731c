package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/login/", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "ada@example.com", creds["email"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token": "tok-1",
			"user": map[string]interface{}{
				"id":       "user-1",
				"email":    "ada@example.com",
				"name":     "Ada",
				"is_admin": true,
				"verified": true,
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	res, err := client.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "user-1", res.User.ID)
	assert.True(t, res.User.IsAdmin)
}

func TestLoginVerificationRequiredByCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "account not yet usable",
			"code":  "verification_required",
		})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@example.com", "x")
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestLoginVerificationRequiredByMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Email verification required before login",
		})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@example.com", "x")
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestRequestErrorMessageSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Contains(t, err.Error(), "401")
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "user-1", "email": "a@example.com"})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	user, err := client.Me(context.Background(), "tok-9")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-9", gotAuth)
	assert.Equal(t, "user-1", user.ID)
}

func TestChangePasswordPath(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	require.NoError(t, client.ChangePassword(context.Background(), "tok-1", "user-1", "old", "new"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/users/user-1/change-password/", gotPath)
}

func TestAdminRelayPassthrough(t *testing.T) {
	payload := `{"users":42,"analyses":1337}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	raw, err := client.AdminStats(context.Background(), "tok-admin")
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(raw))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

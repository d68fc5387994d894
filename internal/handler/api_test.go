package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-calc-api/internal/config"
	"go-calc-api/internal/handler"
	"go-calc-api/internal/middleware"
	"go-calc-api/internal/model"
	"go-calc-api/internal/router"
	"go-calc-api/internal/service"
	"go-calc-api/pkg/apierror"
)

// In-memory stores standing in for the pgx repositories.

type memUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func (s *memUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, apierror.NotFound("user not found", id)
}

func (s *memUserStore) FindByLogin(_ context.Context, login string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return u, nil
		}
	}
	return model.User{}, apierror.NotFound("user not found", "")
}

func (s *memUserStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

type memBlacklistStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (s *memBlacklistStore) Insert(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jti]; exists {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *memBlacklistStore) Contains(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, exists := s.entries[jti]
	return exists && expiresAt.After(time.Now()), nil
}

func (s *memBlacklistStore) CleanExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type memCalculationStore struct {
	mu           sync.Mutex
	calculations map[string]model.Calculation
}

func (s *memCalculationStore) Create(_ context.Context, c model.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculations[c.ID] = c
	return nil
}

func (s *memCalculationStore) FindByID(_ context.Context, userID string, id string) (model.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calculations[id]; ok && c.UserID == userID {
		return c, nil
	}
	return model.Calculation{}, apierror.NotFound("calculation not found", id)
}

func (s *memCalculationStore) ListByUser(_ context.Context, userID string) ([]model.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Calculation, 0)
	for _, c := range s.calculations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCalculationStore) Update(_ context.Context, c model.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.calculations[c.ID]
	if !ok || existing.UserID != c.UserID {
		return apierror.NotFound("calculation not found", c.ID)
	}
	s.calculations[c.ID] = c
	return nil
}

func (s *memCalculationStore) Delete(_ context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calculations[id]; ok && c.UserID == userID {
		delete(s.calculations, id)
		return nil
	}
	return apierror.NotFound("calculation not found", id)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	authService, err := service.NewAuthService("test-secret", 15*time.Minute, 24*time.Hour, 4,
		&memUserStore{users: map[string]model.User{}},
		&memBlacklistStore{entries: map[string]time.Time{}},
		nil, nil)
	require.NoError(t, err)

	calculationService := service.NewCalculationService(
		&memCalculationStore{calculations: map[string]model.Calculation{}}, nil)

	pagesHandler, err := handler.NewPagesHandler()
	require.NoError(t, err)

	cfg := &config.Config{
		ServerPort:       "8080",
		RequestTimeout:   30 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}

	srv := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Calculation: handler.NewCalculationHandler(calculationService),
		Pages:       pagesHandler,
		WS:          func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotImplemented) },
	}))
	t.Cleanup(srv.Close)

	return srv
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func doJSON(t *testing.T, method string, rawURL string, token string, payload any) (*http.Response, apiResponse) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, rawURL, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &parsed)
	}

	return resp, parsed
}

func registerPayload() map[string]string {
	return map[string]string{
		"username":   "testuser123",
		"email":      "testuser@example.com",
		"first_name": "John",
		"last_name":  "Doe",
		"password":   "ValidPass123!",
	}
}

func loginTokens(t *testing.T, srv *httptest.Server) model.TokenPair {
	t.Helper()

	resp, body := doJSON(t, "POST", srv.URL+"/auth/login", "", map[string]string{
		"username": "testuser123",
		"password": "ValidPass123!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens model.TokenPair
	require.NoError(t, json.Unmarshal(body.Data, &tokens))
	return tokens
}

func TestAuthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("register", func(t *testing.T) {
		resp, body := doJSON(t, "POST", srv.URL+"/auth/register", "", registerPayload())
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var user model.PublicUser
		require.NoError(t, json.Unmarshal(body.Data, &user))
		assert.Equal(t, "testuser123", user.Username)
		assert.NotEmpty(t, user.ID)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		resp, body := doJSON(t, "POST", srv.URL+"/auth/register", "", registerPayload())
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, "ALREADY_EXISTS", body.Error.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		payload := registerPayload()
		payload["username"] = "otheruser"
		payload["email"] = "invalidemail"
		resp, body := doJSON(t, "POST", srv.URL+"/auth/register", "", payload)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	})

	t.Run("login wrong password", func(t *testing.T) {
		resp, body := doJSON(t, "POST", srv.URL+"/auth/login", "", map[string]string{
			"username": "testuser123",
			"password": "WrongPass123!",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	})

	t.Run("login success", func(t *testing.T) {
		tokens := loginTokens(t, srv)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
	})

	t.Run("oauth2 form login", func(t *testing.T) {
		form := url.Values{}
		form.Set("grant_type", "password")
		form.Set("username", "testuser123")
		form.Set("password", "ValidPass123!")

		resp, err := http.PostForm(srv.URL+"/auth/token", form)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tokenResp model.OAuth2TokenResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenResp))
		assert.NotEmpty(t, tokenResp.AccessToken)
		assert.Equal(t, "bearer", tokenResp.TokenType)
		assert.NotEmpty(t, tokenResp.UserID)
	})

	t.Run("oauth2 form login bad credentials", func(t *testing.T) {
		form := url.Values{}
		form.Set("username", "testuser123")
		form.Set("password", "nope")

		resp, err := http.PostForm(srv.URL+"/auth/token", form)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me", func(t *testing.T) {
		tokens := loginTokens(t, srv)

		resp, body := doJSON(t, "GET", srv.URL+"/auth/me", tokens.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var user model.PublicUser
		require.NoError(t, json.Unmarshal(body.Data, &user))
		assert.Equal(t, "testuser@example.com", user.Email)
	})

	t.Run("refresh rotation and reuse", func(t *testing.T) {
		tokens := loginTokens(t, srv)

		resp, body := doJSON(t, "POST", srv.URL+"/auth/refresh", "", map[string]string{
			"refresh_token": tokens.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rotated model.TokenPair
		require.NoError(t, json.Unmarshal(body.Data, &rotated))
		assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

		// The exchanged token is burned.
		resp, _ = doJSON(t, "POST", srv.URL+"/auth/refresh", "", map[string]string{
			"refresh_token": tokens.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout revokes both tokens", func(t *testing.T) {
		tokens := loginTokens(t, srv)

		resp, _ := doJSON(t, "POST", srv.URL+"/auth/logout", tokens.AccessToken, map[string]string{
			"refresh_token": tokens.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, "GET", srv.URL+"/auth/me", tokens.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = doJSON(t, "POST", srv.URL+"/auth/refresh", "", map[string]string{
			"refresh_token": tokens.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestCalculationEndpoints(t *testing.T) {
	srv := newTestServer(t)

	_, _ = doJSON(t, "POST", srv.URL+"/auth/register", "", registerPayload())
	tokens := loginTokens(t, srv)

	t.Run("unauthenticated requests rejected", func(t *testing.T) {
		resp, _ := doJSON(t, "GET", srv.URL+"/calculations", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = doJSON(t, "POST", srv.URL+"/calculations", "", map[string]any{
			"type": "addition", "inputs": []float64{1, 2},
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	var created model.Calculation

	t.Run("add", func(t *testing.T) {
		resp, body := doJSON(t, "POST", srv.URL+"/calculations", tokens.AccessToken, map[string]any{
			"type":   "division",
			"inputs": []float64{100, 4},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body.Data, &created))
		assert.Equal(t, float64(25), created.Result)
	})

	t.Run("divide by zero", func(t *testing.T) {
		resp, body := doJSON(t, "POST", srv.URL+"/calculations", tokens.AccessToken, map[string]any{
			"type":   "division",
			"inputs": []float64{10, 0},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	})

	t.Run("browse and read", func(t *testing.T) {
		resp, body := doJSON(t, "GET", srv.URL+"/calculations", tokens.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []model.Calculation
		require.NoError(t, json.Unmarshal(body.Data, &list))
		require.Len(t, list, 1)

		resp, body = doJSON(t, "GET", srv.URL+"/calculations/"+created.ID, tokens.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got model.Calculation
		require.NoError(t, json.Unmarshal(body.Data, &got))
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("edit recomputes", func(t *testing.T) {
		resp, body := doJSON(t, "PUT", srv.URL+"/calculations/"+created.ID, tokens.AccessToken, map[string]any{
			"type":   "addition",
			"inputs": []float64{1, 2, 3},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated model.Calculation
		require.NoError(t, json.Unmarshal(body.Data, &updated))
		assert.Equal(t, float64(6), updated.Result)
	})

	t.Run("foreign calculation reads as not found", func(t *testing.T) {
		other := registerPayload()
		other["username"] = "seconduser"
		other["email"] = "second@example.com"
		resp, _ := doJSON(t, "POST", srv.URL+"/auth/register", "", other)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, body := doJSON(t, "POST", srv.URL+"/auth/login", "", map[string]string{
			"username": "seconduser",
			"password": "ValidPass123!",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var otherTokens model.TokenPair
		require.NoError(t, json.Unmarshal(body.Data, &otherTokens))

		resp, _ = doJSON(t, "GET", srv.URL+"/calculations/"+created.ID, otherTokens.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp, _ := doJSON(t, "DELETE", srv.URL+"/calculations/"+created.ID, tokens.AccessToken, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = doJSON(t, "GET", srv.URL+"/calculations/"+created.ID, tokens.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPages(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/", "/login", "/register", "/dashboard"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html", path)
		assert.NotEmpty(t, body, path)
	}

	// The auth pages carry the form ids the frontend scripts rely on.
	resp, err := http.Get(srv.URL + "/login")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `id="loginForm"`)

	resp, err = http.Get(srv.URL + "/register")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `id="registrationForm"`)
}

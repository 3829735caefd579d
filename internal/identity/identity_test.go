package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/store"
)

type fakeUsers struct {
	users map[string]*domain.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) UpsertUser(_ context.Context, u *domain.User) error {
	f.users[u.UserID] = u
	return nil
}

type captured struct {
	userID, displayName, sessionID string
}

func capture(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.userID = UserIDFromContext(r.Context())
		c.displayName = DisplayNameFromContext(r.Context())
		c.sessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware_CreatesAnonymousUser(t *testing.T) {
	users := &fakeUsers{users: map[string]*domain.User{}}
	var got captured
	h := Middleware(users, true)(capture(&got))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if !isValidAnonID(got.userID) {
		t.Fatalf("Expected anonymous id, got %q", got.userID)
	}
	if _, ok := users.users[got.userID]; !ok {
		t.Fatalf("Expected user %s to be stored", got.userID)
	}
	if got.sessionID != DefaultSessionIDValue {
		t.Errorf("Expected default session id, got %q", got.sessionID)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != got.userID {
		t.Errorf("Expected identity cookie, got %+v", cookies)
	}
}

func TestMiddleware_ReusesCookieAndDisplayName(t *testing.T) {
	const id = "anon_0123456789abcdef0123456789abcdef"
	users := &fakeUsers{users: map[string]*domain.User{id: {UserID: id, DisplayName: "Dana Cruz"}}}
	var got captured
	h := Middleware(users, false)(capture(&got))

	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	r.Header.Set(SessionHeaderName, "tab-2")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got.userID != id {
		t.Errorf("Expected %s, got %s", id, got.userID)
	}
	if got.displayName != "Dana Cruz" {
		t.Errorf("Expected display name, got %q", got.displayName)
	}
	if got.sessionID != "tab-2" {
		t.Errorf("Expected tab-2, got %q", got.sessionID)
	}
}

func TestMiddleware_StoreFailure(t *testing.T) {
	users := &fakeUsers{users: map[string]*domain.User{}, err: errors.New("disk full")}
	var got captured
	h := Middleware(users, true)(capture(&got))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if got.userID != "" {
		t.Errorf("Expected next handler not to run")
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":          DefaultSessionIDValue,
		"  tab-1  ": "tab-1",
		"bad id!":   DefaultSessionIDValue,
		"a.b:c_d-e": "a.b:c_d-e",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u-1", "Dana", "")
	if UserIDFromContext(ctx) != "u-1" || DisplayNameFromContext(ctx) != "Dana" {
		t.Fatalf("identity not carried: %q %q", UserIDFromContext(ctx), DisplayNameFromContext(ctx))
	}
	if SessionIDFromContext(ctx) != DefaultSessionIDValue {
		t.Errorf("Expected default session id, got %q", SessionIDFromContext(ctx))
	}
}

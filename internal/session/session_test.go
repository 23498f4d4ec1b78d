package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/CharadesAI/charadesai-sub000/internal/api"
	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*api.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := api.NewClient(&config.APIConfig{BaseURL: server.URL}, nil, testLogger())
	return client, server
}

func TestSessionLoadRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	first := NewSession(store, nil, testLogger())
	first.Load(ctx)
	first.Login(ctx, "tok1", &models.Profile{Username: "a"})

	// Simulate a restart: a fresh session over the same store.
	second := NewSession(store, nil, testLogger())
	if !second.Loading() {
		t.Fatal("expected session to start in loading state")
	}
	second.Load(ctx)

	if second.Loading() {
		t.Fatal("expected loading to settle after Load")
	}
	if second.Token() != "tok1" {
		t.Fatalf("Token = %q, want tok1", second.Token())
	}
	user := second.User()
	if user == nil || user.Username != "a" {
		t.Fatalf("User = %+v, want username a", user)
	}
	if !second.Authenticated() {
		t.Fatal("expected authenticated session")
	}
}

func TestSessionLoadEmptyStore(t *testing.T) {
	ctx := context.Background()
	sess := NewSession(newTestFileStore(t), nil, testLogger())
	sess.Load(ctx)

	if sess.Token() != "" || sess.User() != nil {
		t.Fatalf("expected empty session, got token=%q user=%+v", sess.Token(), sess.User())
	}
	if sess.Authenticated() {
		t.Fatal("empty session must not be authenticated")
	}
}

func TestLogoutClearsStateWhenServerFails(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	var logoutCalls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/logout" {
			atomic.AddInt32(&logoutCalls, 1)
			http.Error(w, `{"message":"server exploded"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	sess := NewSession(store, client, testLogger())
	sess.Load(ctx)
	sess.Login(ctx, "tok1", &models.Profile{Username: "a"})

	sess.Logout(ctx)

	if atomic.LoadInt32(&logoutCalls) != 1 {
		t.Fatalf("logout calls = %d, want 1", logoutCalls)
	}
	if sess.Token() != "" || sess.User() != nil {
		t.Fatalf("expected cleared session, got token=%q user=%+v", sess.Token(), sess.User())
	}

	// The store is cleared too
	token, _ := store.Token(ctx)
	user, _ := store.User(ctx)
	if token != "" || user != nil {
		t.Fatalf("expected cleared store, got token=%q user=%+v", token, user)
	}
}

func TestLogoutWithoutTokenSkipsServerCall(t *testing.T) {
	ctx := context.Background()

	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	sess := NewSession(newTestFileStore(t), client, testLogger())
	sess.Load(ctx)
	sess.Logout(ctx)

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no server call without a token, got %d", calls)
	}
}

func TestLoginWritesThroughToStore(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	sess := NewSession(store, nil, testLogger())
	sess.Load(ctx)
	sess.Login(ctx, "tok9", &models.Profile{Username: "grace", Email: "grace@example.com"})

	token, _ := store.Token(ctx)
	if token != "tok9" {
		t.Fatalf("stored token = %q, want tok9", token)
	}
	user, _ := store.User(ctx)
	if user == nil || user.Email != "grace@example.com" {
		t.Fatalf("stored user = %+v, want grace", user)
	}
}

func TestSetUserWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	sess := NewSession(store, nil, testLogger())
	sess.Load(ctx)
	sess.Login(ctx, "tok1", &models.Profile{Username: "a"})

	sess.SetUser(ctx, &models.Profile{Username: "a", Avatar: "https://cdn/avatar.png"})

	user, _ := store.User(ctx)
	if user == nil || user.Avatar != "https://cdn/avatar.png" {
		t.Fatalf("stored user = %+v, want updated avatar", user)
	}
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tmxfleet/alert-relay/internal/models"
)

func setupAuth(t *testing.T, staticSessions string, ttl time.Duration) (*Authenticator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	authn, err := NewAuthenticator(client, staticSessions, ttl)
	if err != nil {
		t.Fatalf("building authenticator: %v", err)
	}
	return authn, mr
}

func storeSession(t *testing.T, mr *miniredis.Miniredis, token, record string) {
	t.Helper()
	if err := mr.Set("session:auth:"+token, record); err != nil {
		t.Fatalf("seeding session record: %v", err)
	}
}

func TestAuthenticator_ResolveStatic(t *testing.T) {
	authn, _ := setupAuth(t, "tok1=u1:standard:d1|d2,admtok=a1:admin", time.Minute)

	sess, err := authn.Resolve(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if sess.UserID != "u1" || sess.Role != models.RoleStandard {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.Devices.Len() != 2 || !sess.Devices.Contains("d1") {
		t.Errorf("unexpected device set: %v", sess.Devices.IDs())
	}

	admin, err := authn.Resolve(context.Background(), "admtok")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !admin.IsAdmin() {
		t.Error("expected admin role")
	}
}

func TestAuthenticator_ResolveFromRedis(t *testing.T) {
	authn, mr := setupAuth(t, "", time.Minute)
	storeSession(t, mr, "rtok", `{"userId":"u9","role":"standard","devices":["d5"],"pushGranted":true}`)

	sess, err := authn.Resolve(context.Background(), "rtok")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if sess.UserID != "u9" || !sess.PushGranted || !sess.Devices.Contains("d5") {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestAuthenticator_ResolveInvalid(t *testing.T) {
	authn, _ := setupAuth(t, "", time.Minute)

	if _, err := authn.Resolve(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := authn.Resolve(context.Background(), "unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown token: expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticator_ResolveServesFromCache(t *testing.T) {
	authn, mr := setupAuth(t, "", time.Minute)
	storeSession(t, mr, "ctok", `{"userId":"u3","role":"standard","devices":["d1"]}`)

	if _, err := authn.Resolve(context.Background(), "ctok"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The record disappearing from Redis does not evict the live cache
	// entry within its TTL.
	mr.Del("session:auth:ctok")
	sess, err := authn.Resolve(context.Background(), "ctok")
	if err != nil {
		t.Fatalf("cached Resolve failed: %v", err)
	}
	if sess.UserID != "u3" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestAuthenticator_SessionValid(t *testing.T) {
	authn, mr := setupAuth(t, "stok=u1:standard:d1", time.Minute)
	storeSession(t, mr, "rtok", `{"userId":"u2","role":"standard","devices":["d2"]}`)

	if !authn.SessionValid(context.Background(), "stok") {
		t.Error("static token must always be valid")
	}
	if !authn.SessionValid(context.Background(), "rtok") {
		t.Error("expected a stored session to be valid")
	}

	mr.Del("session:auth:rtok")
	if authn.SessionValid(context.Background(), "rtok") {
		t.Error("a deleted session record must be invalid")
	}
}

func TestAuthenticator_SessionValidDuringRedisOutage(t *testing.T) {
	authn, mr := setupAuth(t, "", time.Minute)
	storeSession(t, mr, "rtok", `{"userId":"u2","role":"standard","devices":["d2"]}`)

	// A backend outage is the same condition that breaks feed
	// subscriptions; it must read as indeterminate, not as auth expiry,
	// or every transport failure would force a reauthentication.
	mr.Close()

	if !authn.SessionValid(context.Background(), "rtok") {
		t.Error("an unreachable auth backend must not invalidate the session")
	}
}

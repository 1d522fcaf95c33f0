package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// ErrInvalidToken is returned for tokens no session resolves from.
var ErrInvalidToken = errors.New("invalid session token")

type cacheEntry struct {
	session   *models.Session
	expiresAt time.Time
}

// Authenticator resolves bearer tokens into sessions. Static sessions
// from config are checked first, then a short-lived in-memory cache,
// then the session records the external auth service keeps in Redis.
type Authenticator struct {
	redis      *redis.Client
	localCache sync.Map
	ttl        time.Duration
	static     map[string]*models.Session
}

func NewAuthenticator(redisClient *redis.Client, staticSessions string, cacheTTL time.Duration) (*Authenticator, error) {
	static, err := parseStaticSessions(staticSessions)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		redis:  redisClient,
		ttl:    cacheTTL,
		static: static,
	}, nil
}

// Resolve maps token to a session, or ErrInvalidToken.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	// Level 0: static config sessions
	if sess, ok := a.static[token]; ok {
		return sess, nil
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(token); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.session, nil
		}
		a.localCache.Delete(token)
	}

	// Level 2: Redis lookup
	sess, err := a.lookupRedis(ctx, token)
	if err != nil {
		return nil, err
	}

	a.localCache.Store(token, cacheEntry{
		session:   sess,
		expiresAt: time.Now().Add(a.ttl),
	})
	return sess, nil
}

// SessionValid reports whether the token still resolves, bypassing the
// local cache. The relay uses it to tell auth expiry apart from plain
// transport failure: only a definitive "no such session" answer counts
// as invalid. A lookup that fails for any other reason is indeterminate
// and the session keeps retrying rather than being forced to reauth.
func (a *Authenticator) SessionValid(ctx context.Context, token string) bool {
	if _, ok := a.static[token]; ok {
		return true
	}
	_, err := a.lookupRedis(ctx, token)
	return !errors.Is(err, ErrInvalidToken)
}

type sessionRecord struct {
	UserID      string   `json:"userId"`
	Role        string   `json:"role"`
	Devices     []string `json:"devices"`
	PushGranted bool     `json:"pushGranted"`
}

func (a *Authenticator) lookupRedis(ctx context.Context, token string) (*models.Session, error) {
	key := fmt.Sprintf("session:auth:%s", token)
	val, err := a.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("redis session lookup failed: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("malformed session record for token: %w", err)
	}
	return recordToSession(rec), nil
}

func recordToSession(rec sessionRecord) *models.Session {
	role := models.RoleStandard
	if rec.Role == string(models.RoleAdmin) {
		role = models.RoleAdmin
	}
	return &models.Session{
		UserID:      rec.UserID,
		Role:        role,
		Devices:     models.NewDeviceSet(rec.Devices...),
		PushGranted: rec.PushGranted,
	}
}

// parseStaticSessions parses "token=userID:role:dev1|dev2" entries
// separated by commas.
func parseStaticSessions(raw string) (map[string]*models.Session, error) {
	static := make(map[string]*models.Session)
	if strings.TrimSpace(raw) == "" {
		return static, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed static session entry %q", entry)
		}
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed static session spec %q", spec)
		}

		rec := sessionRecord{UserID: parts[0], Role: parts[1]}
		if len(parts) > 2 && parts[2] != "" {
			rec.Devices = strings.Split(parts[2], "|")
		}
		static[token] = recordToSession(rec)
	}
	return static, nil
}

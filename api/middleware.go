package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/chat"
)

const expiresAtExtension = "exp"

// Authenticator guards the REST routes with a cached bearer strategy over the token verifier
type Authenticator struct {
	authenticator auth.Authenticator
	verifier      chat.Verifier
	cache         store.Cache
	now           func() time.Time
}

// NewAuthenticator sets up go-guardian. Verified tokens are cached for ttl so repeated
// requests skip the signature check and user lookup. A cached token is still rejected, and
// evicted, once its own expiry passes.
func NewAuthenticator(ctx context.Context, verifier chat.Verifier, ttl time.Duration) *Authenticator {
	a := &Authenticator{
		authenticator: auth.New(),
		verifier:      verifier,
		cache:         store.NewFIFO(ctx, ttl),
		now:           time.Now,
	}
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, bearer.New(a.validateToken, a.cache))
	return a
}

func (a *Authenticator) validateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	id, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	var ext map[string][]string
	if !id.ExpiresAt.IsZero() {
		ext = map[string][]string{expiresAtExtension: {strconv.FormatInt(id.ExpiresAt.UnixNano(), 10)}}
	}
	return auth.NewDefaultUser(id.Email, strconv.FormatUint(uint64(id.UserID), 10), nil, ext), nil
}

// evict drops the request's token from the cache so the next request re-verifies it
func (a *Authenticator) evict(r *http.Request) {
	if token, err := bearer.Token(r); err == nil {
		_ = a.cache.Delete(token, r)
	}
}

// Middleware rejects unauthenticated requests and puts the caller's identity in the request
// context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		info, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Debugw("unauthorized", "url", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		id, err := identityFromInfo(info)
		if err != nil {
			zap.S().Errorw("unusable identity in token cache", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		if id.Expired(a.now()) {
			a.evict(r)
			zap.S().Debugw("token expired", "url", r.URL.Path, "userId", id.UserID)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(chat.WithIdentity(r.Context(), id)))
	})
}

func identityFromInfo(info auth.Info) (chat.Identity, error) {
	uid, err := strconv.ParseUint(info.ID(), 10, 64)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("invalid user id %q: %w", info.ID(), err)
	}
	id := chat.Identity{UserID: uint(uid), Email: info.UserName()}
	if v := info.Extensions()[expiresAtExtension]; len(v) == 1 {
		nanos, err := strconv.ParseInt(v[0], 10, 64)
		if err != nil {
			return chat.Identity{}, fmt.Errorf("invalid token expiry %q: %w", v[0], err)
		}
		id.ExpiresAt = time.Unix(0, nanos)
	}
	return id, nil
}

package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = time.Minute
)

// idempotentRoute names a mutating endpoint that requires an Idempotency-Key.
// "*" in path matches exactly one segment.
type idempotentRoute struct {
	method   string
	path     string
	critical bool
}

// Money-moving routes keep their replay record for a week.
var idempotentRoutes = []idempotentRoute{
	{http.MethodPost, "/api/v1/checkout", true},
	{http.MethodPost, "/api/v1/orders/verify", true},
	{http.MethodPost, "/api/v1/orders/*/cancel", true},
	{http.MethodPost, "/api/v1/orders/*/returns", false},
	{http.MethodPost, "/api/v1/admin/payouts", true},
	{http.MethodPatch, "/api/v1/admin/payouts/*/status", false},
}

type idempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// storedResponse is what gets replayed for a repeated key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on the
// routes in idempotentRoutes. Keys are scoped per actor, method and path. ttl
// applies to ordinary routes and defaults to 24h. While the first request runs,
// a duplicate gets 409; server errors are not recorded so the client can retry.
func Idempotency(store idempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupIdempotentRoute(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			storeKey := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, key)

			prior, err := loadStoredResponse(ctx, store, storeKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if prior != nil {
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				prior.replay(w)
				return
			}

			lockKey := storeKey + ":inflight"
			token := uuid.NewString()
			acquired, err := store.SetNX(ctx, lockKey, token, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !acquired {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
				return
			}
			defer func() {
				if _, err := store.DelIfValue(context.WithoutCancel(ctx), lockKey, token); err != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "idempotency_key", key), "idempotency.release_failed: "+err.Error())
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			stored := capture.stored(fingerprint)
			if stored.Status >= http.StatusInternalServerError {
				return
			}
			recordTTL := ttl
			if route.critical && recordTTL < criticalIdempotencyTTL {
				recordTTL = criticalIdempotencyTTL
			}
			if err := saveStoredResponse(ctx, store, storeKey, stored, recordTTL); err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", key), "idempotency.persist_failed", err)
			}
		})
	}
}

func lookupIdempotentRoute(method, path string) (idempotentRoute, bool) {
	for _, route := range idempotentRoutes {
		if route.method == method && pathMatches(route.path, path) {
			return route, true
		}
	}
	return idempotentRoute{}, false
}

func pathMatches(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] == "*" {
			if got[i] == "" {
				return false
			}
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func loadStoredResponse(ctx context.Context, store idempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// saveStoredResponse uses SetNX so a concurrent first request cannot overwrite
// the record written by the one that finished earlier.
func saveStoredResponse(ctx context.Context, store idempotencyStore, key string, stored storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = store.SetNX(ctx, key, string(payload), ttl)
	return err
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) stored(fingerprint string) storedResponse {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	out := storedResponse{
		Status:      status,
		ContentType: c.Header().Get("Content-Type"),
		Fingerprint: fingerprint,
	}
	if c.body.Len() > 0 {
		out.Body = append([]byte(nil), c.body.Bytes()...)
	}
	return out
}

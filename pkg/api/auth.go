package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/auranet/aura-core/pkg/crypto"
)

type contextKey int

const (
	ctxKeyDID contextKey = iota
	ctxKeyRequestID
)

// verifiedDID returns the DID the signature middleware established for
// this request. Handlers must use this, never a client-supplied field.
func verifiedDID(r *http.Request) string {
	if did, ok := r.Context().Value(ctxKeyDID).(string); ok {
		return did
	}
	return ""
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// withRequestID assigns a request_id (from X-Request-Id if present,
// else a fresh UUIDv4) to every request, signed or not, per spec.md
// §4.1.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSignature implements spec.md §4.1's six-step verification and
// rebinds r.Body so downstream handlers can still read it.
func requireSignature(toleranceSeconds int64, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			did := r.Header.Get("X-Agent-ID")
			tsHeader := r.Header.Get("X-Timestamp")
			sig := r.Header.Get("X-Signature")

			var missing []string
			if did == "" {
				missing = append(missing, "X-Agent-ID")
			}
			if tsHeader == "" {
				missing = append(missing, "X-Timestamp")
			}
			if sig == "" {
				missing = append(missing, "X-Signature")
			}
			if len(missing) > 0 {
				respondError(w, http.StatusUnauthorized, "missing_headers", fmt.Sprintf("missing required headers: %v", missing))
				return
			}

			if _, err := crypto.ParseDID(did); err != nil {
				respondError(w, http.StatusUnauthorized, "invalid_did", err.Error())
				return
			}

			ts, err := strconv.ParseInt(tsHeader, 10, 64)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid_timestamp", "X-Timestamp must be a unix-seconds integer")
				return
			}
			diff := now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > toleranceSeconds {
				respondError(w, http.StatusUnauthorized, "replay_window_exceeded", fmt.Sprintf("timestamp diff %ds exceeds tolerance %ds", diff, toleranceSeconds))
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				respondError(w, http.StatusBadRequest, "body_read_failed", err.Error())
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			bodyHash, err := canonicalBodyHash(bodyBytes)
			if err != nil {
				respondError(w, http.StatusBadRequest, "malformed_json_body", err.Error())
				return
			}

			msg := crypto.CanonicalRequestMessage(r.Method, r.URL.Path, ts, bodyHash)
			if err := crypto.VerifySignature(did, []byte(msg), sig); err != nil {
				respondError(w, http.StatusUnauthorized, "signature_invalid", "request signature verification failed")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyDID, did)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// canonicalBodyHash re-serializes body with sorted keys and minimal
// separators before hashing, so signer and verifier never disagree on
// whitespace. An empty body hashes the empty string, not JSON null.
func canonicalBodyHash(body []byte) (string, error) {
	if len(body) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("invalid JSON body: %w", err)
	}
	canonical, err := json.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("re-marshal body: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

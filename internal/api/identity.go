// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/ManuGH/restream/internal/domain/stream/registry"
	"github.com/ManuGH/restream/internal/log"
)

// HeaderAccountID identifies the calling account. Authentication happens
// upstream; the daemon trusts this header.
const HeaderAccountID = "X-Account-ID"

const maxAccountIDLen = 128

type ownerKey struct{}

// requireOwner rejects requests without an account header and records the
// owner and client address on the request context.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderAccountID))
		if owner == "" || len(owner) > maxAccountIDLen {
			writeUnauthorized(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = log.ContextWithOwner(ctx, owner)
		ctx = registry.ContextWithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

// clientIP returns the host part of RemoteAddr. With a trusted proxy the
// RealIP middleware has already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

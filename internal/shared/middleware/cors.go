package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	allowedMethods = "GET, POST, DELETE, OPTIONS"
	// Browser clients of the hosted auth SDK send x-client-info and apikey.
	allowedHeaders = "authorization, x-client-info, apikey, content-type"
)

// CORS answers preflights and sets CORS headers. With no allowed hosts every
// origin gets "*"; otherwise only listed hosts are echoed back and other
// browser origins are refused. Webhook deliveries are server to server and
// skip the origin check.
func CORS(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", allowedMethods)
			h.Set("Access-Control-Allow-Headers", allowedHeaders)
			h.Set("Access-Control-Max-Age", "3600")

			origin := r.Header.Get("Origin")
			switch {
			case len(allowedHosts) == 0 || strings.HasPrefix(r.URL.Path, "/webhooks/"):
				h.Set("Access-Control-Allow-Origin", "*")
			case origin == "":
				// Not a browser cross-origin request.
			case isOriginAllowed(origin, allowedHosts):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			default:
				writeJSONError(w, http.StatusForbidden, "Origin not allowed")
				return
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowedHosts []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return IsHostAllowed(u.Host, allowedHosts)
}

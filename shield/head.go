package shield

import (
	"context"
	"net/http"
)

// headRequestKey marks a request that arrived as HEAD before HeadToGet
// rewrote its method.
const headRequestKey contextKey = "shield_head_request"

// HeadToGet serves HEAD through GET routes, so a HEAD on a download link
// reports its headers instead of 405. net/http drops the body. The original
// method stays visible through IsHead.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r = r.WithContext(context.WithValue(r.Context(), headRequestKey, true))
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// IsHead reports whether r was sent as HEAD, including requests HeadToGet
// routed through GET handlers. Handlers with side effects on GET check it.
func IsHead(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return true
	}
	head, _ := r.Context().Value(headRequestKey).(bool)
	return head
}

package shield

import (
	"mime"
	"net/http"
)

// UploadOverhead is the headroom granted to multipart framing on top of the
// file size cap.
const UploadOverhead = 1 << 20

// MaxUploadBody returns middleware that caps multipart/form-data request
// bodies at maxBytes plus UploadOverhead. Reads past the cap fail with
// *http.MaxBytesError. Other content types are passed through.
func MaxUploadBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "multipart/form-data" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes+UploadOverhead)
			}
			next.ServeHTTP(w, r)
		})
	}
}

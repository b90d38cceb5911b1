package api

import (
	"fmt"
	"net/http"
)

// recoverHandler converts a panicking handler into a 500 so one bad
// request cannot take down the process.
func (s *RelayApp) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				w.Header().Set("Connection", "close")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

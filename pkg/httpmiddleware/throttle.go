package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ThrottleConfig limits requests per key within a fixed window.
type ThrottleConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc returns the throttling key. Requests with an empty key pass.
	KeyFunc func(*http.Request) string
	// Now is used in tests.
	Now func() time.Time
}

type window struct {
	start time.Time
	count int
}

// Throttle rejects requests over cfg.Max per key and window with 429 and a
// Retry-After header. Expired windows are dropped lazily.
func Throttle(cfg ThrottleConfig) Middleware {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var (
		mu      sync.Mutex
		windows = make(map[string]*window)
	)

	allow := func(key string) (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()

		now := cfg.Now()
		for k, w := range windows {
			if now.Sub(w.start) >= cfg.Window {
				delete(windows, k)
			}
		}

		w, ok := windows[key]
		if !ok {
			w = &window{start: now}
			windows[key] = w
		}
		if w.count >= cfg.Max {
			return w.start.Add(cfg.Window).Sub(now), false
		}
		w.count++
		return 0, true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if key == "" || cfg.Max <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if wait, ok := allow(key); !ok {
				secs := max(int((wait+time.Second-1)/time.Second), 1)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

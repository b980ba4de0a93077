package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter применяет глобальный и per-client лимиты запросов
type RateLimiter struct {
	global  *rate.Limiter
	clients map[string]*clientLimiter
	mu      sync.Mutex

	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	maxItems int
	now      func() time.Time
}

// NewRateLimiter создает лимитер: rps запросов в секунду на клиента с запасом burst.
// Глобальный лимит в десять раз выше клиентского.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		global:   rate.NewLimiter(rate.Limit(rps*10), burst*10),
		clients:  make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		maxItems: 10_000,
		now:      time.Now,
	}
}

// DropCounter считает отклоненные запросы (metrics.Metrics)
type DropCounter interface {
	IncRateLimitDropped()
}

// RateLimit ограничивает запросы по IP клиента
func RateLimit(limiter *RateLimiter, dropped DropCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				if dropped != nil {
					dropped.IncRateLimitDropped()
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	item, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.maxItems {
			l.cleanupLocked(now.Add(-l.idleTTL))
		}
		item = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = item
	}
	item.lastSeen = now

	return item.limiter.AllowN(now, 1)
}

// Clients возвращает количество отслеживаемых клиентов
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *RateLimiter) cleanupLocked(threshold time.Time) {
	for ip, entry := range l.clients {
		if entry.lastSeen.Before(threshold) {
			delete(l.clients, ip)
		}
	}
}

// ClientIP берет первый адрес из X-Forwarded-For, затем X-Real-IP, затем RemoteAddr
func ClientIP(r *http.Request) string {
	if forwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

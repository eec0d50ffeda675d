package gateway

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	nativecommon "stakenet/native/common"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with a correlation identifier so gateway log
// lines can be tied back to a caller's request.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// quotaLimiter enforces a per-address request quota over one-minute epochs.
type quotaLimiter struct {
	mu    sync.Mutex
	quota nativecommon.Quota
	usage map[[20]byte]nativecommon.QuotaNow
	epoch uint64
	nowFn func() time.Time
}

func newQuotaLimiter(requestsPerMin uint32) *quotaLimiter {
	return &quotaLimiter{
		quota: nativecommon.Quota{MaxRequestsPerMin: requestsPerMin, EpochSeconds: 60},
		usage: make(map[[20]byte]nativecommon.QuotaNow),
		nowFn: time.Now,
	}
}

// Allow consumes one request from the address's quota, reporting whether the
// request may proceed. Counters from finished epochs are dropped wholesale on
// the first request of a new epoch so the usage map stays bounded by the
// number of addresses active within one epoch.
func (l *quotaLimiter) Allow(addr [20]byte) bool {
	if l == nil || l.quota.MaxRequestsPerMin == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	epoch := uint64(l.nowFn().Unix()) / uint64(l.quota.EpochSeconds)
	if epoch != l.epoch {
		l.usage = make(map[[20]byte]nativecommon.QuotaNow)
		l.epoch = epoch
	}
	next, err := nativecommon.CheckQuota(l.quota, epoch, l.usage[addr], 1)
	if err != nil {
		return false
	}
	l.usage[addr] = next
	return true
}

// ipRateLimiter throttles HTTP callers by client IP ahead of any handler
// work, complementing the per-address quota applied to engine operations. A
// visitor's limiter is dropped after an idle period so the map stays bounded.
type ipRateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	visitors map[string]*visitorEntry
	nowFn    func() time.Time
}

type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdleTTL = 5 * time.Minute

func newIPRateLimiter(requestsPerMin uint32) *ipRateLimiter {
	if requestsPerMin == 0 {
		return nil
	}
	perSec := rate.Limit(float64(requestsPerMin) / 60.0)
	burst := int(requestsPerMin / 60)
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		perSec:   perSec,
		burst:    burst,
		visitors: make(map[string]*visitorEntry),
		nowFn:    time.Now,
	}
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientID(r)) {
			writeJSONError(w, http.StatusTooManyRequests, "request rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ipRateLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	entry, ok := l.visitors[id]
	if !ok {
		for key, stale := range l.visitors {
			if now.Sub(stale.lastSeen) > visitorIdleTTL {
				delete(l.visitors, key)
			}
		}
		entry = &visitorEntry{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first := forwarded
		if comma := strings.IndexByte(forwarded, ','); comma > 0 {
			first = strings.TrimSpace(forwarded[:comma])
		}
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LinkLimiter はログインリンク要求をキー（メールアドレス・IPアドレス）ごとに制限する。
type LinkLimiter struct {
	perEmail rate.Limit
	perIP    rate.Limit
	burst    int
	ttl      time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter
	now      func() time.Time
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLinkLimiter はLinkLimiterを生成する。
// perEmailとperIPは1時間あたりの許可回数。
func NewLinkLimiter(perEmailPerHour, perIPPerHour int) *LinkLimiter {
	return &LinkLimiter{
		perEmail: rate.Limit(float64(perEmailPerHour) / 3600),
		perIP:    rate.Limit(float64(perIPPerHour) / 3600),
		burst:    max(perEmailPerHour, 1),
		ttl:      time.Hour,
		limiters: make(map[string]*keyLimiter),
		now:      time.Now,
	}
}

// Allow はメールアドレスとIPアドレスの両方が上限内ならtrueを返す。
// IPアドレスが空の場合はメールアドレスのみで判定する。
func (l *LinkLimiter) Allow(email, ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	emailOK := l.get("email:"+email, l.perEmail, l.burst, now).AllowN(now, 1)
	if ip == "" {
		return emailOK
	}
	ipOK := l.get("ip:"+ip, l.perIP, l.burst*4, now).AllowN(now, 1)
	return emailOK && ipOK
}

func (l *LinkLimiter) get(key string, r rate.Limit, burst int, now time.Time) *rate.Limiter {
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(r, burst)}
		l.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter
}

// evict は一定時間アクセスのないキーを取り除く。
func (l *LinkLimiter) evict(now time.Time) {
	for key, kl := range l.limiters {
		if now.Sub(kl.lastSeen) > l.ttl {
			delete(l.limiters, key)
		}
	}
}

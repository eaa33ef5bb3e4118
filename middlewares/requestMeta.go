package middlewares

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/nrednav/cuid2"
	"github.com/securebidz/apiv1/models"
)

const REQUEST_ID_HEADER = "X-Request-Id"

// geo headers set by the edge proxy when it knows where a request came from
const (
	GEO_COUNTRY_HEADER = "X-Geo-Country"
	GEO_CITY_HEADER    = "X-Geo-City"
	GEO_REGION_HEADER  = "X-Geo-Region"
)

// RequestID tags every request with an id that shows up in logs and audit
// failures. A well formed id from the client is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(REQUEST_ID_HEADER)
		if !cuid2.IsCuid(id) {
			id = cuid2.Generate()
		}
		w.Header().Set(REQUEST_ID_HEADER, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

var trustedProxies []*net.IPNet

// TrustProxies sets the networks allowed to report the client address in
// X-Forwarded-For. Entries are CIDRs or single addresses. With none set the
// header is ignored.
func TrustProxies(proxies []string) error {
	nets := make([]*net.IPNet, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return fmt.Errorf("invalid proxy address %q", p)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			p = fmt.Sprintf("%s/%d", ip, bits)
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return fmt.Errorf("invalid proxy network %q: %w", p, err)
		}
		nets = append(nets, ipNet)
	}
	trustedProxies = nets
	return nil
}

func isTrustedProxy(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP is the peer address unless the peer is a trusted proxy. Then
// X-Forwarded-For is walked from the right and the first hop that is not
// itself a trusted proxy wins.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrustedProxy(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" || net.ParseIP(hop) == nil {
			break
		}
		if !isTrustedProxy(hop) {
			return hop
		}
		host = hop
	}
	return host
}

// RequestMeta collects what the audit trail records about the caller.
func RequestMeta(r *http.Request) models.RequestMeta {
	meta := models.RequestMeta{
		RequestID: RequestIDFromContext(r.Context()),
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	location := &models.Location{
		Country: strings.TrimSpace(r.Header.Get(GEO_COUNTRY_HEADER)),
		City:    strings.TrimSpace(r.Header.Get(GEO_CITY_HEADER)),
		Region:  strings.TrimSpace(r.Header.Get(GEO_REGION_HEADER)),
	}
	if location.Known() {
		meta.Location = location
	}
	return meta
}

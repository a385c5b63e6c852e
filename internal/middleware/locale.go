package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var LocaleKey = localeContextKey{}

// CountryLookup resolves an IP address to an ISO 3166-1 country code.
type CountryLookup interface {
	CountryCode(ip string) (string, error)
}

// Locale stores the caller's preferred language as a BCP 47 tag. X-Locale
// wins over Accept-Language; without either, the client's country (when
// countries is set) picks its most likely language, then fallback applies.
func Locale(fallback string, countries CountryLookup) func(http.Handler) http.Handler {
	def := "en"
	if tag, err := language.Parse(fallback); err == nil {
		def = tag.String()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, "")
			if locale == "" && countries != nil {
				if cc, err := countries.CountryCode(ClientIP(r)); err == nil {
					locale = countryLocale(cc)
				}
			}
			if locale == "" {
				locale = def
			}
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			return tag.String()
		}
	}
	if v := r.Header.Get("Accept-Language"); v != "" {
		tags, _, err := language.ParseAcceptLanguage(v)
		if err == nil && len(tags) > 0 && tags[0] != language.Und {
			return tags[0].String()
		}
	}
	return fallback
}

// countryLocale returns the most likely language for an ISO country code
// as a tag carrying that region, e.g. "ID" becomes "id-ID".
func countryLocale(cc string) string {
	region, err := language.ParseRegion(cc)
	if err != nil {
		return ""
	}
	tag, err := language.Compose(language.Und, region)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	tag, err = language.Compose(base, region)
	if err != nil {
		return ""
	}
	return tag.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

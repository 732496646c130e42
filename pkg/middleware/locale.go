package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/ajidk16/tadbeer/pkg/contextkeys"
)

// LocaleCookieName is the cookie a user's language preference is stored in
const LocaleCookieName = "locale"

// DefaultLocale is used when neither cookie nor Accept-Language resolves
const DefaultLocale = "id"

// LangPlaceholder is the token page templates embed where the resolved
// language tag belongs (typically the html lang attribute)
const LangPlaceholder = "%lang%"

// supportedLocales are the languages the UI ships translations for
var supportedLocales = map[string]bool{
	"id": true,
	"en": true,
	"ar": true,
}

// LocaleResolver resolves the request language and attaches it to the
// context and the Content-Language response header, and substitutes the
// LangPlaceholder token in outgoing bodies. Resolution order: locale
// cookie, Accept-Language header, DefaultLocale. This stage cannot fail
// and never denies a request.
func LocaleResolver() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := resolveLocale(r)
			w.Header().Set("Content-Language", locale)
			ctx := contextkeys.WithLocale(r.Context(), locale)
			lw := &localeWriter{ResponseWriter: w, locale: []byte(locale)}
			next.ServeHTTP(lw, r.WithContext(ctx))
		})
	}
}

// localeWriter substitutes LangPlaceholder in each body chunk with the
// resolved language tag. Substitution is per chunk; templates emit the
// token within one write.
type localeWriter struct {
	http.ResponseWriter
	locale      []byte
	wroteHeader bool
}

func (lw *localeWriter) WriteHeader(code int) {
	if !lw.wroteHeader {
		lw.wroteHeader = true
		// Substitution changes the body length
		lw.Header().Del("Content-Length")
	}
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *localeWriter) Write(p []byte) (int, error) {
	if !lw.wroteHeader {
		lw.WriteHeader(http.StatusOK)
	}
	if _, err := lw.ResponseWriter.Write(bytes.ReplaceAll(p, []byte(LangPlaceholder), lw.locale)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func resolveLocale(r *http.Request) string {
	if c, err := r.Cookie(LocaleCookieName); err == nil {
		if supportedLocales[c.Value] {
			return c.Value
		}
	}

	// Accept-Language: "en-US,en;q=0.9,id;q=0.8" - first supported primary
	// subtag wins; q-values are ignored since the header is already ordered
	// by preference in practice.
	header := r.Header.Get("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		primary := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if supportedLocales[primary] {
			return primary
		}
	}

	return DefaultLocale
}

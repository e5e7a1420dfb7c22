// Package middleware содержит HTTP middleware для сервиса UrbanPOS.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/urbanpos/internal/model"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	authCookieName = "pos_session"
	authCookieTTL  = 12 * time.Hour
)

// SessionVerifier сверяет сессию из cookie с хранилищем ключей доступа.
type SessionVerifier interface {
	VerifySession(ctx context.Context, session model.Session) (*model.Session, error)
}

// AuthMiddleware выполняет проверку сессии кассира по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
	verifier  SessionVerifier
	now       func() time.Time
}

// signedSession - полезная нагрузка cookie. Срок действия подписывается вместе с сессией.
type signedSession struct {
	model.Session
	ExpiresAt int64 `json:"exp"`
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// При пустом секрете генерируется случайный ключ, и сессии не переживают перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// WithVerifier включает повторную проверку каждой сессии через v.
func (a *AuthMiddleware) WithVerifier(v SessionVerifier) *AuthMiddleware {
	a.verifier = v
	return a
}

// Middleware проверяет cookie сессии и добавляет сессию в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		session, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		// Ошибка проверки закрывает сессию: отозванный ключ не должен работать.
		if a.verifier != nil {
			fresh, err := a.verifier.VerifySession(r.Context(), session)
			if err != nil {
				a.ClearSessionCookie(w)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			session = *fresh
		}

		ctx := WithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission пропускает запрос, если сессии доступен хотя бы один из разделов pages.
// Должен подключаться после Middleware.
func RequirePermission(pages ...model.PagePermission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !allowsAny(session, pages) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowsAny(session model.Session, pages []model.PagePermission) bool {
	for _, p := range pages {
		if session.Allows(p) {
			return true
		}
	}
	return false
}

// SetSessionCookie устанавливает подписанный cookie сессии.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, session model.Session) error {
	expires := a.now().Add(authCookieTTL)
	value, err := a.sign(session, expires)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// ClearSessionCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(session model.Session, expires time.Time) (string, error) {
	raw, err := json.Marshal(signedSession{Session: session, ExpiresAt: expires.Unix()})
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + a.signature(payload), nil
}

func (a *AuthMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (model.Session, bool) {
	payload, signature, found := strings.Cut(cookieValue, ".")
	if !found {
		return model.Session{}, false
	}

	if !hmac.Equal([]byte(signature), []byte(a.signature(payload))) {
		return model.Session{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return model.Session{}, false
	}

	var signed signedSession
	if err := json.Unmarshal(raw, &signed); err != nil {
		return model.Session{}, false
	}

	if !a.now().Before(time.Unix(signed.ExpiresAt, 0)) {
		return model.Session{}, false
	}

	return signed.Session, true
}

// WithSession кладёт сессию в контекст.
func WithSession(ctx context.Context, session model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSessionFromContext извлекает сессию кассира из контекста запроса.
func GetSessionFromContext(ctx context.Context) (model.Session, bool) {
	session, ok := ctx.Value(sessionKey).(model.Session)
	return session, ok
}

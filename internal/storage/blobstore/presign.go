// presign.go — выдача и проверка подписанных time-boxed ссылок на объекты.
// Ссылка — URL вида {base}/objects/{bucket}/{key}?token=<JWT HS256>.
// Токен несёт bucket, key и срок действия; credentials не требуются.
package blobstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidLink — подпись ссылки недействительна или срок действия истёк.
var ErrInvalidLink = errors.New("недействительная или истёкшая ссылка")

// DefaultPresignTTL — срок действия ссылки по умолчанию.
const DefaultPresignTTL = 3600 * time.Second

// presignClaims — полезная нагрузка токена ссылки.
type presignClaims struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	jwt.RegisteredClaims
}

// Presigner — генератор и верификатор подписанных ссылок.
type Presigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewPresigner создаёт Presigner.
// baseURL — внешний адрес сервиса без завершающего слэша.
func NewPresigner(secret []byte, baseURL string) (*Presigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: пустой секрет подписи", ErrInvalidArgument)
	}
	return &Presigner{
		secret:  secret,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// SignedURL выдаёт подписанную ссылку на чтение объекта, действительную ttl.
// ttl <= 0 — используется DefaultPresignTTL.
func (p *Presigner) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	now := p.now().UTC()
	claims := presignClaims{
		Bucket: bucket,
		Key:    key,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bucket + "/" + key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи ссылки: %w", err)
	}

	// Сегменты ключа экранируем по отдельности, слэши структуры пути сохраняем
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return fmt.Sprintf("%s/objects/%s/%s?token=%s",
		p.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"), token), nil
}

// Verify проверяет токен ссылки и возвращает (bucket, key).
// Неверная подпись, чужой алгоритм или истёкший срок — ErrInvalidLink.
func (p *Presigner) Verify(tokenStr string) (bucket, key string, err error) {
	claims := &presignClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return p.now() }),
	)
	if err != nil || !token.Valid {
		return "", "", ErrInvalidLink
	}
	if claims.Bucket == "" || claims.Key == "" {
		return "", "", ErrInvalidLink
	}
	return claims.Bucket, claims.Key, nil
}

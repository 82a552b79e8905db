package jwt

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
)

type CustomClaims struct {
	UserId uint64 `json:"user_id"`
	Sub    string `json:"sub"` // 鉴权的主题，目前有user 和 administrator两种
	jwt.RegisteredClaims
}

// 是否为管理员
func (claims *CustomClaims) IsAdministrator() bool {
	arr := strings.Split(claims.Sub, "_")
	if len(arr) == 2 && arr[1] == "administrator" {
		return true
	}
	return false
}

func BuildClaims(exp time.Time, uid uint64, issuer string, isAdministrator bool) *CustomClaims {
	sub := "user"
	if isAdministrator {
		sub = sub + "_administrator"
	}
	return &CustomClaims{
		UserId: uid,
		Sub:    sub,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}
}

func GenToken(c *CustomClaims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secretKey))
}

// ParseToken 解析jwt token
func ParseToken(jwtStr, secretKey string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(jwtStr, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Blacklist token黑名单，登出后的token在过期前放进redis
type Blacklist struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBlacklist(rdb *redis.Client, ttl time.Duration) *Blacklist {
	return &Blacklist{rdb: rdb, ttl: ttl}
}

func blacklistKey(token string) string {
	sum := md5.Sum([]byte(token))
	return "jwt_black_list:" + hex.EncodeToString(sum[:])
}

func (b *Blacklist) Add(ctx context.Context, token string) error {
	return b.rdb.Set(ctx, blacklistKey(token), "1", b.ttl).Err()
}

func (b *Blacklist) Contains(ctx context.Context, token string) bool {
	if b == nil || b.rdb == nil {
		return false
	}
	n, err := b.rdb.Exists(ctx, blacklistKey(token)).Result()
	return err == nil && n > 0
}

package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/d60-Lab/followgraph/pkg/response"
)

const (
	UserIDKey    = "user_id"
	bearerPrefix = "Bearer "

	// RoleHost 宿主系统的服务凭证，只有它能触发实体删除级联
	RoleHost = "host"
)

var errBadSubject = errors.New("token subject is not a user id")

// Claims 在标准声明上带一个 role，普通用户 token 不设置
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth 只负责身份：sub 为用户 id，会话和 nonce 仍由宿主系统管理
type Auth struct {
	secret []byte
	issuer string
}

func NewAuth(secret, issuer string) *Auth {
	return &Auth{secret: []byte(secret), issuer: issuer}
}

// Required 缺少或无效 token 返回 401
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		uid, err := a.Parse(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// Optional 有合法 token 时注入用户 id，否则按匿名访客处理
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c); ok {
			if uid, err := a.Parse(raw); err == nil {
				c.Set(UserIDKey, uid)
			}
		}
		c.Next()
	}
}

// Host 只放行 role=host 的服务 token；普通用户 token 返回 403
func (a *Auth) Host() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		claims, err := a.ParseClaims(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		if claims.Role != RoleHost {
			response.Forbidden(c, "host credential required")
			return
		}
		c.Next()
	}
}

// ParseClaims validates an HS256 token issued by the configured issuer.
func (a *Auth) ParseClaims(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Parse returns the token subject as a user id.
func (a *Auth) Parse(raw string) (int64, error) {
	claims, err := a.ParseClaims(raw)
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return 0, errBadSubject
	}
	return uid, nil
}

// Sign 签发用户 token，供宿主系统联调和测试使用
func (a *Auth) Sign(userID int64, ttl time.Duration) (string, error) {
	return a.sign(strconv.FormatInt(userID, 10), "", ttl)
}

// SignHost 签发宿主系统的服务 token
func (a *Auth) SignHost(service string, ttl time.Duration) (string, error) {
	return a.sign(service, RoleHost, ttl)
}

func (a *Auth) sign(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserID 返回当前请求的用户 id；匿名时 ok 为 false
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	return raw, raw != ""
}

package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidIdentity 身份格式错误
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrUnauthenticated 调用方签名校验失败
	ErrUnauthenticated = errors.New("caller authentication failed")
)

// Identity 调用方身份，即 ed25519 公钥
type Identity [ed25519.PublicKeySize]byte

// FromPublicKey 由公钥构造身份
func FromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != ed25519.PublicKeySize {
		return id, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidIdentity, ed25519.PublicKeySize)
	}
	copy(id[:], pub)
	return id, nil
}

// Parse 解析十六进制编码的身份
func Parse(s string) (Identity, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return FromPublicKey(raw)
}

// String 十六进制表示
func (i Identity) String() string {
	return hex.EncodeToString(i[:])
}

// Bytes 原始公钥字节，用作地址派生材料
func (i Identity) Bytes() []byte {
	return i[:]
}

// PublicKey 返回 ed25519 公钥
func (i Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(i[:])
}

// Authenticator 校验调用方自签名的 EdDSA JWT
// 令牌的 sub 为调用方公钥，令牌必须由该公钥对应的私钥签名
type Authenticator struct {
	leeway time.Duration
	maxTTL time.Duration
}

// NewAuthenticator 创建认证器，maxTTL 为 0 时不限制令牌有效期长度
func NewAuthenticator(leeway, maxTTL time.Duration) *Authenticator {
	return &Authenticator{leeway: leeway, maxTTL: maxTTL}
}

// Authenticate 校验令牌并返回签名者身份
func (a *Authenticator) Authenticate(tokenString string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		id, err := Parse(claims.Subject)
		if err != nil {
			return nil, err
		}
		return id.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if a.maxTTL > 0 {
		// 有效期从 max(now, iat) 算起，没有 iat 时按剩余有效期计算
		issued := time.Now()
		if claims.IssuedAt != nil && claims.IssuedAt.After(issued) {
			issued = claims.IssuedAt.Time
		}
		if claims.ExpiresAt.Sub(issued) > a.maxTTL {
			return Identity{}, fmt.Errorf("%w: token lifetime exceeds %s", ErrUnauthenticated, a.maxTTL)
		}
	}

	return Parse(claims.Subject)
}

// IssueToken 使用私钥签发自签名令牌，供客户端和测试使用
func IssueToken(priv ed25519.PrivateKey, ttl time.Duration) (string, error) {
	id, err := FromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
}

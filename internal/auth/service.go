package auth

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/pkg/logger"
)

// DefaultTTL 是未配置时签发令牌的有效期。
const DefaultTTL = time.Hour

// Claims 是签发令牌携带的声明。
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
}

// Service 负责签发与校验 API 令牌。
type Service struct {
	mode   Mode
	secret []byte
	issuer string
	ttl    time.Duration
	audit  *slog.Logger
	now    func() time.Time
}

// NewService 构造认证服务。jwt 模式要求配置签名密钥。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit(), now: time.Now}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeJWT:
		if strings.TrimSpace(cfg.Secret) == "" {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "jwt 模式必须配置签名密钥")
		}
		svc.secret = []byte(cfg.Secret)
		svc.issuer = cfg.Issuer
		svc.ttl = cfg.TTL
		if svc.ttl <= 0 {
			svc.ttl = DefaultTTL
		}
		return svc, nil
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的认证模式: %s", cfg.Mode)
	}
}

// Mode 返回当前认证模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Issue 为 subject 签发带有指定权限的令牌。
func (s *Service) Issue(subject string, permissions ...string) (string, time.Time, error) {
	if s == nil || s.mode != ModeJWT {
		return "", time.Time{}, ErrDisabled
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Permissions: append([]string(nil), permissions...),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(xerrors.CodeUnknown, err, "签发令牌失败")
	}
	return signed, expires, nil
}

// Verify 校验令牌签名、签发者与有效期，返回令牌主体。
func (s *Service) Verify(token string) (*Subject, error) {
	if s == nil || s.mode != ModeJWT {
		return nil, ErrDisabled
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	subject := &Subject{Name: claims.Subject, Permissions: claims.Permissions}
	subject.normalise()
	return subject, nil
}

// AuthenticateHeader 解析 Authorization 头中的 Bearer 令牌。
func (s *Service) AuthenticateHeader(header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return s.Verify(strings.TrimSpace(token))
}

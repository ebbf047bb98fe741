package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"quiz_backend/internal/model"
	"quiz_backend/internal/util"
	"time"

	"github.com/go-resty/resty/v2"
)

// IdentityProvider 校验 bearer 凭证并返回调用者身份
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*util.Claims, error)
}

// JWTProvider 本地 HS256 校验
type JWTProvider struct {
	Secret string
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{Secret: secret}
}

func (p *JWTProvider) Verify(_ context.Context, token string) (*util.Claims, error) {
	return util.ParseJWT(token, p.Secret)
}

// RemoteProvider 调用外部身份服务的 introspection 接口
type RemoteProvider struct {
	client *resty.Client
	url    string
}

func NewRemoteProvider(url string, timeout time.Duration) *RemoteProvider {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &RemoteProvider{client: client, url: url}
}

type introspectionResponse struct {
	Active bool           `json:"active"`
	UID    string         `json:"uid"`
	Sub    string         `json:"sub"`
	Email  string         `json:"email"`
	Name   string         `json:"name"`
	Role   model.UserRole `json:"role"`
}

var ErrInvalidToken = errors.New("invalid token")

func (p *RemoteProvider) Verify(ctx context.Context, token string) (*util.Claims, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned %d", resp.StatusCode())
	}

	var body introspectionResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("invalid introspection response: %w", err)
	}
	uid := body.UID
	if uid == "" {
		uid = body.Sub
	}
	if !body.Active || uid == "" {
		return nil, ErrInvalidToken
	}
	return &util.Claims{UID: uid, Email: body.Email, Name: body.Name, Role: body.Role}, nil
}

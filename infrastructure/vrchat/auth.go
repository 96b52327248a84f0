package vrchat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
)

var _ domainAuth.AuthAPI = (*Client)(nil)

var twoFactorMethods = map[string]bool{"totp": true, "emailotp": true, "otp": true}

type currentUserPayload struct {
	ID                    string   `json:"id"`
	Username              string   `json:"username"`
	DisplayName           string   `json:"displayName"`
	RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
}

func (p currentUserPayload) user() *domainAuth.CurrentUser {
	return &domainAuth.CurrentUser{ID: p.ID, Username: p.Username, DisplayName: p.DisplayName}
}

// Login authenticates with basic credentials. Any previously stored session
// is discarded first.
func (c *Client) Login(ctx context.Context, username, password string) (domainAuth.LoginResult, error) {
	if err := c.session.Clear(ctx); err != nil {
		return domainAuth.LoginResult{}, fmt.Errorf("clear session: %w", err)
	}

	cred := url.QueryEscape(username) + ":" + url.QueryEscape(password)
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cred)))

	resp, data, err := c.do(ctx, http.MethodGet, "/auth/user", nil, header)
	if err != nil {
		return domainAuth.LoginResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return domainAuth.LoginResult{}, decodeAPIError(resp.StatusCode, data)
	}

	var payload currentUserPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domainAuth.LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if len(payload.RequiresTwoFactorAuth) > 0 {
		methods := make([]string, 0, len(payload.RequiresTwoFactorAuth))
		for _, m := range payload.RequiresTwoFactorAuth {
			methods = append(methods, strings.ToLower(m))
		}
		logrus.Infof("[VRCHAT] login needs a second factor (%s)", strings.Join(methods, ", "))
		return domainAuth.LoginResult{RequiresTwoFactor: true, TwoFactorMethods: methods}, nil
	}
	logrus.Infof("[VRCHAT] logged in as %s", payload.DisplayName)
	return domainAuth.LoginResult{User: payload.user()}, nil
}

// VerifyTwoFactor submits a totp, emailotp or otp code for the pending login.
func (c *Client) VerifyTwoFactor(ctx context.Context, method, code string) error {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = "totp"
	}
	if !twoFactorMethods[method] {
		return &APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf("unsupported two-factor method %q", method)}
	}

	var out struct {
		Verified bool `json:"verified"`
	}
	path := "/auth/twofactorauth/" + method + "/verify"
	if err := c.call(ctx, http.MethodPost, path, map[string]string{"code": code}, &out); err != nil {
		return err
	}
	if !out.Verified {
		return &APIError{Status: http.StatusUnauthorized, Message: "two-factor code was not accepted"}
	}
	return nil
}

// CurrentUser returns the session identity, or nil when there is no usable session.
func (c *Client) CurrentUser(ctx context.Context) (*domainAuth.CurrentUser, error) {
	if !c.session.HasCredential(ctx) {
		return nil, nil
	}
	resp, data, err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	var payload currentUserPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	if len(payload.RequiresTwoFactorAuth) > 0 || payload.ID == "" {
		return nil, nil
	}
	return payload.user(), nil
}

// Logout invalidates the remote session when possible and always drops the local one.
func (c *Client) Logout(ctx context.Context) error {
	if c.session.HasCredential(ctx) {
		if err := c.call(ctx, http.MethodPut, "/logout", nil, nil); err != nil {
			logrus.WithError(err).Warn("[VRCHAT] remote logout failed, clearing local session anyway")
		}
	}
	return c.session.Clear(ctx)
}

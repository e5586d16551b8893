package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// RefreshPath is the backend token refresh endpoint.
const RefreshPath = "/api/v1/auth/refresh"

// Refresh exchanges a refresh token for a new access token. The backend
// answers with {"accessToken": ...} or {"token": ...}; any other shape or a
// non-2xx status is a refresh failure.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apierror.New(apierror.CodeUnauthorized, "no refresh token available")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", apierror.Wrap(err, apierror.CodeInternal, "could not encode refresh request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return "", apierror.Wrap(err, apierror.CodeInternal, "could not build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", apierror.Wrap(err, apierror.CodeUnavailable, "token refresh request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.WarnContext(ctx, "token refresh rejected", "status", resp.StatusCode)
		return "", apierror.WithStatus(apierror.CodeUnauthorized, "token refresh rejected", resp.StatusCode)
	}

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apierror.New(apierror.CodeBadResponse, "invalid refresh response")
	}

	token := firstString(parsed, "", "accessToken", "token")
	if token == "" {
		return "", apierror.New(apierror.CodeBadResponse, "refresh response carried no token")
	}

	p.logger.InfoContext(ctx, "access token refreshed")
	return token, nil
}

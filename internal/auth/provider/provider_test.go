package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// ProviderSuite tests the credential exchange and its response-shape table.
type ProviderSuite struct {
	suite.Suite
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) newProvider(handler http.HandlerFunc) (*Provider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := New(srv.URL, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return p, srv
}

func (s *ProviderSuite) stubLogin(status int, body string) (*Provider, *httptest.Server) {
	return s.newProvider(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal(LoginPath, r.URL.Path)

		var creds map[string]string
		s.NoError(json.NewDecoder(r.Body).Decode(&creds))
		s.NotEmpty(creds["email"])
		s.NotEmpty(creds["password"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (s *ProviderSuite) TestResponseShapes() {
	cases := []struct {
		name      string
		body      string
		wantID    string
		wantEmail string
		wantName  string
		wantRole  string
		wantToken string
		wantShape string
	}{
		{
			name:      "token nested in user object",
			body:      `{"user":{"_id":"1","email":"a@b.com","name":"Ann","role":"admin","token":"tok1"}}`,
			wantID:    "1",
			wantEmail: "a@b.com",
			wantName:  "Ann",
			wantRole:  "admin",
			wantToken: "tok1",
			wantShape: "user_embedded_token",
		},
		{
			name:      "user object with sibling root token",
			body:      `{"user":{"id":"2","email":"a@b.com","username":"ann2"},"token":"tok2"}`,
			wantID:    "2",
			wantEmail: "a@b.com",
			wantName:  "ann2",
			wantRole:  "user",
			wantToken: "tok2",
			wantShape: "user_root_token",
		},
		{
			name:      "user and token at root, alternate spelling",
			body:      `{"user":{"id":"3","fullName":"Ann Three"},"token":"tok3","success":true}`,
			wantID:    "3",
			wantEmail: "a@b.com",
			wantName:  "Ann Three",
			wantRole:  "user",
			wantToken: "tok3",
			wantShape: "user_root_token",
		},
		{
			name:      "user with root accessToken",
			body:      `{"user":{"userId":"4","name":"Ann"},"accessToken":"tok4"}`,
			wantID:    "4",
			wantEmail: "a@b.com",
			wantName:  "Ann",
			wantRole:  "user",
			wantToken: "tok4",
			wantShape: "user_root_access_token",
		},
		{
			name:      "data wrapper with root token",
			body:      `{"data":{"_id":"5","email":"d@b.com","roleName":"editor"},"token":"tok5"}`,
			wantID:    "5",
			wantEmail: "d@b.com",
			wantName:  "User",
			wantRole:  "editor",
			wantToken: "tok5",
			wantShape: "data_root_token",
		},
		{
			name:      "data wrapper with root accessToken",
			body:      `{"data":{"id":"6","name":"Dee"},"accessToken":"tok6"}`,
			wantID:    "6",
			wantEmail: "a@b.com",
			wantName:  "Dee",
			wantRole:  "user",
			wantToken: "tok6",
			wantShape: "data_root_access_token",
		},
		{
			name:      "whole payload is the user with token",
			body:      `{"_id":"7","email":"r@b.com","name":"Root","role":"viewer","token":"tok7"}`,
			wantID:    "7",
			wantEmail: "r@b.com",
			wantName:  "Root",
			wantRole:  "viewer",
			wantToken: "tok7",
			wantShape: "root_token",
		},
		{
			name:      "whole payload is the user with accessToken",
			body:      `{"id":"8","username":"root8","accessToken":"tok8"}`,
			wantID:    "8",
			wantEmail: "a@b.com",
			wantName:  "root8",
			wantRole:  "user",
			wantToken: "tok8",
			wantShape: "root_access_token",
		},
		{
			name:      "bare id object with late token",
			body:      `{"_id":"9","name":"Nine","accessToken":"tok9","ok":true}`,
			wantID:    "9",
			wantEmail: "a@b.com",
			wantName:  "Nine",
			wantRole:  "user",
			wantToken: "tok9",
			wantShape: "root_access_token",
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			p, srv := s.stubLogin(http.StatusOK, tc.body)
			defer srv.Close()

			res, err := p.Login(context.Background(), "a@b.com", "x")
			s.Require().NoError(err)
			s.Equal(tc.wantID, res.User.ID)
			s.Equal(tc.wantEmail, res.User.Email)
			s.Equal(tc.wantName, res.User.Name)
			s.Equal(tc.wantRole, res.User.Role)
			s.Equal(tc.wantToken, res.Token)
			s.Equal(tc.wantShape, res.Shape)
		})
	}
}

func (s *ProviderSuite) TestBareIDWithoutTokenViaNormalize() {
	// The bare-id row matches without a token; the token-presence check is the
	// caller's job.
	user, token, shapeName, ok := normalize(map[string]any{"id": "10", "name": "Ten"})
	s.True(ok)
	s.Equal("root_id", shapeName)
	s.Empty(token)
	s.Equal("Ten", user["name"])
}

func (s *ProviderSuite) TestUnknownShape() {
	p, srv := s.stubLogin(http.StatusOK, `{"status":"ok","count":3}`)
	defer srv.Close()

	_, err := p.Login(context.Background(), "a@b.com", "x")
	s.Require().Error(err)
	s.Equal("Unable to parse user data from server response", err.Error())
}

func (s *ProviderSuite) TestMatchedShapeWithoutToken() {
	p, srv := s.stubLogin(http.StatusOK, `{"id":"9","name":"Nine"}`)
	defer srv.Close()

	_, err := p.Login(context.Background(), "a@b.com", "x")
	s.Require().Error(err)
	s.Equal("No token received from server", err.Error())
}

func (s *ProviderSuite) TestEmptyCredentials() {
	p := New("http://unused", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := p.Login(context.Background(), "", "x")
	s.True(apierror.HasCode(err, apierror.CodeValidation))

	_, err = p.Login(context.Background(), "a@b.com", "")
	s.True(apierror.HasCode(err, apierror.CodeValidation))
}

func (s *ProviderSuite) TestBackendRejection() {
	s.Run("json error body surfaces the backend message", func() {
		p, srv := s.stubLogin(http.StatusUnauthorized, `{"error":"Invalid credentials"}`)
		defer srv.Close()

		_, err := p.Login(context.Background(), "a@b.com", "wrong")
		s.Require().Error(err)
		s.Equal("Invalid credentials", err.Error())
		s.Equal(http.StatusUnauthorized, apierror.Status(err))
	})

	s.Run("message field works too", func() {
		p, srv := s.stubLogin(http.StatusForbidden, `{"message":"Account locked"}`)
		defer srv.Close()

		_, err := p.Login(context.Background(), "a@b.com", "x")
		s.Require().Error(err)
		s.Equal("Account locked", err.Error())
	})

	s.Run("unparsable error body falls back to status message", func() {
		p, srv := s.stubLogin(http.StatusBadGateway, `<html>upstream died</html>`)
		defer srv.Close()

		_, err := p.Login(context.Background(), "a@b.com", "x")
		s.Require().Error(err)
		s.Equal("Login failed with status: 502", err.Error())
	})
}

func (s *ProviderSuite) TestInvalidJSONOnSuccess() {
	p, srv := s.stubLogin(http.StatusOK, `not json at all`)
	defer srv.Close()

	_, err := p.Login(context.Background(), "a@b.com", "x")
	s.Require().Error(err)
	s.Equal("Invalid JSON response from server", err.Error())
}

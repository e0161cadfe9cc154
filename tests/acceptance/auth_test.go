package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/dto"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
)

const testPassword = "Password123"

func (s *Suite) seedUser(email string, isAdmin bool) int64 {
	hash, err := utils.HashPassword(testPassword, 4)
	s.Require().NoError(err)

	row, err := s.Codec.EncryptRow("users", domain.Row{
		"email":             email,
		"password_hash":     hash,
		"name":              "Acceptance User",
		"cpf":               "123.456.789-00",
		"is_admin":          isAdmin,
		"is_active":         true,
		"email_verified_at": time.Now(),
	})
	s.Require().NoError(err)

	id, err := repository.NewUserRepository(s.Postgres).Create(context.Background(), row)
	s.Require().NoError(err)
	return id
}

func (s *Suite) post(path string, body any, cookies ...*http.Cookie) (*http.Response, dto.Response) {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+path, bytes.NewReader(raw))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return s.send(req)
}

func (s *Suite) get(path string, cookies ...*http.Cookie) (*http.Response, dto.Response) {
	req, err := http.NewRequest(http.MethodGet, s.BaseURL+path, nil)
	s.Require().NoError(err)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return s.send(req)
}

func (s *Suite) send(req *http.Request) (*http.Response, dto.Response) {
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var body dto.Response
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" && c.Value != "" {
			return c
		}
	}
	return nil
}

func (s *Suite) lastMail() mail.Message {
	raw, err := s.Redis.Client.LIndex(context.Background(), testOutboxKey, 0).Result()
	s.Require().NoError(err)

	var msg mail.Message
	s.Require().NoError(json.Unmarshal([]byte(raw), &msg))
	return msg
}

func (s *Suite) TestLogin_Success() {
	s.seedUser("shopper@example.com", false)

	resp, body := s.post("/api/v1/auth/login", dto.LoginRequest{
		Email:    "shopper@example.com",
		Password: testPassword,
	})

	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)
	s.Require().NotNil(body.User)
	s.Equal("shopper@example.com", body.User.Email)
	s.Equal("123.456.789-00", body.User.CPF)

	cookie := sessionCookie(resp)
	s.Require().NotNil(cookie, "login must set the session cookie")
	s.True(cookie.HttpOnly)

	resp, body = s.get("/api/v1/auth/me", cookie)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Require().NotNil(body.User)
	s.Equal("shopper@example.com", body.User.Email)
}

func (s *Suite) TestLogin_StoresCiphertext() {
	id := s.seedUser("private@example.com", false)

	var stored string
	err := s.Postgres.DB.Get(&stored, `SELECT email FROM users WHERE id = $1`, id)
	s.Require().NoError(err)
	s.NotContains(stored, "private@example.com")
	s.True(fieldcrypt.IsCiphertext(stored))
}

func (s *Suite) TestLogin_InvalidCredentials() {
	s.seedUser("shopper@example.com", false)

	for _, req := range []dto.LoginRequest{
		{Email: "shopper@example.com", Password: "WrongPassword1"},
		{Email: "nobody@example.com", Password: testPassword},
	} {
		resp, body := s.post("/api/v1/auth/login", req)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("Invalid email or password", body.Error)
	}
}

func (s *Suite) TestLogin_RateLimitedAfterRepeatedFailures() {
	s.seedUser("target@example.com", false)

	var last *http.Response
	for i := 0; i < 10; i++ {
		last, _ = s.post("/api/v1/auth/login", dto.LoginRequest{
			Email:    "target@example.com",
			Password: "WrongPassword1",
		})
		if last.StatusCode == http.StatusTooManyRequests {
			break
		}
	}

	s.Equal(http.StatusTooManyRequests, last.StatusCode)
	s.NotEmpty(last.Header.Get("Retry-After"))
}

func (s *Suite) TestAdminLogin_RequiresEmailedCode() {
	s.seedUser("admin@example.com", true)

	resp, body := s.post("/api/v1/auth/login", dto.LoginRequest{
		Email:    "admin@example.com",
		Password: testPassword,
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.True(body.RequiresTwoFactor)
	s.NotEmpty(body.SessionToken)
	s.Nil(sessionCookie(resp), "no session before the code is verified")

	msg := s.lastMail()
	s.Equal(mail.KindTwoFactorCode, msg.Kind)
	s.Equal("admin@example.com", msg.To)
	s.Len(msg.Data["code"], 6)

	req := dto.TwoFactorLoginRequest{
		Email:        "admin@example.com",
		Password:     testPassword,
		Code:         msg.Data["code"],
		SessionToken: body.SessionToken,
	}

	resp, _ = s.post("/api/v1/auth/login/2fa", req)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(resp)
	s.Require().NotNil(cookie)

	resp, body = s.get("/api/v1/admin/verify", cookie)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Require().NotNil(body.TokenIsAdmin)
	s.Require().NotNil(body.DBIsAdmin)
	s.True(*body.TokenIsAdmin)
	s.True(*body.DBIsAdmin)

	resp, _ = s.post("/api/v1/auth/login/2fa", req)
	s.Equal(http.StatusUnauthorized, resp.StatusCode, "codes are single use")
}

func (s *Suite) TestAdminAccess_RevokedInDatabase() {
	id := s.seedUser("admin@example.com", true)
	s.seedUser("shopper@example.com", false)

	token, _, err := utils.NewTokenService(testJWTSecret, time.Hour, s.Config.JWT.Issuer).Generate(domain.SessionClaims{
		UserID:        id,
		Email:         "admin@example.com",
		EmailVerified: true,
		IsAdmin:       true,
	})
	s.Require().NoError(err)
	cookie := &http.Cookie{Name: "auth_token", Value: token}

	resp, _ := s.get("/api/v1/admin/verify", cookie)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	_, err = s.Postgres.DB.Exec(`UPDATE users SET is_admin = FALSE WHERE id = $1`, id)
	s.Require().NoError(err)

	resp, body := s.get("/api/v1/admin/verify", cookie)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Require().NotNil(body.DBIsAdmin)
	s.False(*body.DBIsAdmin)
}

func (s *Suite) TestPasswordReset_Flow() {
	s.seedUser("forgetful@example.com", false)

	resp, body := s.post("/api/v1/auth/password-reset/request", dto.EmailRequest{Email: "forgetful@example.com"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)

	msg := s.lastMail()
	s.Equal(mail.KindPasswordReset, msg.Kind)
	link, err := url.Parse(msg.Data["link"])
	s.Require().NoError(err)
	s.True(strings.HasSuffix(link.Path, "/reset-password"))
	token := link.Query().Get("token")
	s.Require().NotEmpty(token)

	resp, _ = s.post("/api/v1/auth/password-reset/confirm", dto.ResetPasswordRequest{Token: token, Password: "NewPassword456"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.post("/api/v1/auth/password-reset/confirm", dto.ResetPasswordRequest{Token: token, Password: "OtherPassword789"})
	s.Equal(http.StatusBadRequest, resp.StatusCode, "reset tokens are single use")

	resp, _ = s.post("/api/v1/auth/login", dto.LoginRequest{Email: "forgetful@example.com", Password: "NewPassword456"})
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *Suite) TestPasswordReset_UnknownEmailLooksTheSame() {
	resp, body := s.post("/api/v1/auth/password-reset/request", dto.EmailRequest{Email: "ghost@example.com"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)

	n, err := s.Redis.Client.LLen(context.Background(), testOutboxKey).Result()
	s.Require().NoError(err)
	s.Zero(n)
}

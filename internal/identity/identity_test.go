package identity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	cfg.Issuer = "hazardwatch"
	svc, err := NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func sign(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Issue("42")
	require.NoError(t, err)

	sub, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", sub.ID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), sub.ExpiresAt, time.Minute)
}

func TestTokenService_VerifyUserIDClaim(t *testing.T) {
	svc := newTestService(t)

	token := sign(t, "test-secret", Claims{
		UserID: "17",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hazardwatch",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	sub, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "17", sub.ID)
}

func TestTokenService_VerifyNumericUserIDClaim(t *testing.T) {
	svc := newTestService(t)

	token := sign(t, "test-secret", jwt.MapClaims{
		"userId": 42,
		"iss":    "hazardwatch",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	sub, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", sub.ID)
}

func TestUserID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    UserID
		wantErr bool
	}{
		{"string", `"17"`, "17", false},
		{"integer", `42`, "42", false},
		{"large integer", `9007199254740993`, "9007199254740993", false},
		{"null", `null`, "", false},
		{"bool", `true`, "", true},
		{"object", `{"id":1}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u UserID
			err := json.Unmarshal([]byte(tt.in), &u)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u)
		})
	}
}

func TestTokenService_VerifyFallsBackToSubject(t *testing.T) {
	svc := newTestService(t)

	token := sign(t, "test-secret", jwt.RegisteredClaims{
		Subject:   "user-9",
		Issuer:    "hazardwatch",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	sub, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", sub.ID)
}

func TestTokenService_VerifyRejects(t *testing.T) {
	svc := newTestService(t)
	valid := jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "hazardwatch",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	noSubject := valid
	noSubject.Subject = ""

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", sign(t, "other", valid)},
		{"expired", sign(t, "test-secret", expired)},
		{"wrong issuer", sign(t, "test-secret", wrongIssuer)},
		{"no subscriber id", sign(t, "test-secret", noSubject)},
		{"alg none", none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := NewTokenService(Config{})
	assert.Error(t, err)
}

func TestConfig_Lifecycle(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")

	var cfg Config
	cfg.ApplyDefaults()
	cfg.ApplyEnvOverrides()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "from-env", cfg.Secret)
	assert.Equal(t, 30*time.Second, cfg.Leeway)

	cfg.TokenTTL = -time.Second
	assert.Error(t, cfg.Validate())
}

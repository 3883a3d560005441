package auth

import (
	"errors"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"go.uber.org/zap"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates operators listed in the configuration. When auth is
// disabled every request is treated as an anonymous operator.
type Service struct {
	enabled        bool
	operators      map[string]string
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	logger         *zap.Logger
}

func NewService(cfg config.AuthConfig, logger *zap.Logger) *Service {
	operators := make(map[string]string, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators[op.Username] = op.PasswordHash
	}

	if cfg.Enabled && !cfg.IsProductionReady() {
		logger.Warn("Auth enabled with development JWT secret",
			zap.String("env", cfg.JWTSecretEnv))
	}

	return &Service{
		enabled:        cfg.Enabled,
		operators:      operators,
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(),
		logger:         logger,
	}
}

func (s *Service) Enabled() bool { return s.enabled }

// Login verifies the operator's password and issues an access token.
func (s *Service) Login(username, password string) (string, time.Time, error) {
	hash, ok := s.operators[username]
	if !ok {
		s.logger.Warn("Login failed", zap.String("username", username), zap.String("reason", "unknown operator"))
		return "", time.Time{}, ErrInvalidCredentials
	}

	valid, err := s.passwordHasher.VerifyPassword(password, hash)
	if err != nil {
		s.logger.Error("Operator has unusable password hash", zap.String("username", username), zap.Error(err))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !valid {
		s.logger.Warn("Login failed", zap.String("username", username), zap.String("reason", "invalid password"))
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwtHandler.GenerateAccessToken(username)
	if err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info("Operator logged in", zap.String("username", username))
	return token, expiresAt, nil
}

// ValidateToken returns the claims of a valid operator token.
func (s *Service) ValidateToken(token string) (*JWTClaims, error) {
	return s.jwtHandler.ValidateAccessToken(token)
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stipendly/payday_backend/internal/apperrors"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/utils"
	"github.com/stipendly/payday_backend/pkg/config"
)

// operatorSubject is the JWT subject for the single operator credential.
const operatorSubject = "operator"

// tokenService issues operator access tokens for the admin API.
type tokenService struct {
	cfg *config.Config
}

// NewTokenService creates a new tokenService.
func NewTokenService(cfg *config.Config) portssvc.TokenSvcFacade {
	return &tokenService{cfg: cfg}
}

var _ portssvc.TokenSvcFacade = (*tokenService)(nil)

// Authenticate checks the operator password against its configured bcrypt
// hash and returns a signed access token.
func (s *tokenService) Authenticate(ctx context.Context, password string) (string, time.Time, error) {
	if s.cfg.OperatorPasswordHash == "" || !utils.CheckPasswordHash(password, s.cfg.OperatorPasswordHash) {
		return "", time.Time{}, fmt.Errorf("invalid operator credentials: %w", apperrors.ErrValidation)
	}
	expiresAt := time.Now().Add(s.cfg.JWTExpiryDuration)
	token, err := utils.GenerateJWT(operatorSubject, s.cfg.JWTSecret, s.cfg.JWTExpiryDuration, s.cfg.JWTIssuer)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type AccountService interface {
	Connect(ctx context.Context, userID int64, p platform.Platform, accessToken, refreshToken string, expiresIn int64) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	cfg      config.Config
	sa       repository.SocialAccountRepository
	registry *platform.Registry
}

func NewAccountService(cfg config.Config, sa repository.SocialAccountRepository, registry *platform.Registry) AccountService {
	return &accountService{
		cfg:      cfg,
		sa:       sa,
		registry: registry,
	}
}

// Connect stores a newly authorized account. The profile comes from the
// platform adapter; tokens are encrypted before they touch the database.
func (s *accountService) Connect(ctx context.Context, userID int64, p platform.Platform, accessToken, refreshToken string, expiresIn int64) (int64, error) {
	svc, ok := s.registry.Get(p)
	if !ok {
		return 0, fmt.Errorf("platform %s is not configured", p)
	}

	profile, err := svc.GetProfile(ctx, accessToken, platform.PostOptions{})
	if err != nil {
		return 0, fmt.Errorf("fetching profile: %w", err)
	}

	// Without a configured key, tokens go in the clear; the publisher reads
	// them back the same way.
	storedToken := accessToken
	if accessToken != models.LateManagedMarker && s.cfg.SecretKey != "" {
		storedToken, err = utils.Encrypt([]byte(accessToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return 0, fmt.Errorf("encrypting access token: %w", err)
		}
	}

	storedRefresh := refreshToken
	if refreshToken != "" && s.cfg.SecretKey != "" {
		storedRefresh, err = utils.Encrypt([]byte(refreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return 0, fmt.Errorf("encrypting refresh token: %w", err)
		}
	}

	account := models.SocialAccount{
		UserID:          userID,
		Platform:        string(p),
		AccountID:       profile.ID,
		AccountName:     profile.Name,
		AccountUsername: profile.Username,
		ProfilePicture:  profile.ProfilePicture,
		AccessToken:     storedToken,
		RefreshToken:    storedRefresh,
		TokenExpiresAt:  GetExpiresAt(int(expiresIn)),
	}

	id, err := s.sa.Create(ctx, nil, &account)
	if err != nil {
		return 0, fmt.Errorf("saving social account: %w", err)
	}
	return id, nil
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error getting social accounts")
	}
	return accounts, nil
}

func (s *accountService) Delete(ctx context.Context, userID, accountID int64) error {
	var err error

	if userID == 0 || accountID == 0 {
		err = errors.New("account is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	return s.sa.Remove(ctx, accountID)
}

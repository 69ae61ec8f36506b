package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// TokenRefreshJob runs on a cron schedule and refreshes credentials that are
// about to expire, going through each account's platform adapter. A failed
// refresh is logged and left for the next run; publishing surfaces the
// authentication failure on its own.
type TokenRefreshJob struct {
	sr        repository.SocialAccountRepository
	registry  *platform.Registry
	secretKey []byte
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, registry *platform.Registry, secretKey []byte) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:        sr,
		registry:  registry,
		secretKey: secretKey,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiringBetween(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refreshAccount(ctx, acc); err != nil {
				slog.Warn("unable to refresh token",
					"platform", acc.Platform, "account_id", acc.ID, "error", err)
			}
		}(acc)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) refreshAccount(ctx context.Context, acc *models.SocialAccount) error {
	svc, ok := c.registry.Get(platform.Platform(acc.Platform))
	if !ok {
		slog.Info("no adapter for platform, skipping refresh", "platform", acc.Platform)
		return nil
	}

	refreshToken := acc.RefreshToken
	if refreshToken != "" && len(c.secretKey) > 0 {
		decrypted, err := utils.Decrypt(refreshToken, c.secretKey)
		if err != nil {
			return err
		}
		refreshToken = decrypted
	}

	token, err := svc.RefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if token.AccessToken == "" || token.AccessToken == refreshToken {
		// Adapter has nothing to rotate (app passwords, aggregator keys).
		return nil
	}

	encryptedAccess := token.AccessToken
	encryptedRefresh := token.RefreshToken
	if len(c.secretKey) > 0 {
		encryptedAccess, err = utils.Encrypt([]byte(token.AccessToken), c.secretKey)
		if err != nil {
			return err
		}
		if token.RefreshToken != "" {
			encryptedRefresh, err = utils.Encrypt([]byte(token.RefreshToken), c.secretKey)
			if err != nil {
				return err
			}
		}
	}

	updated := models.SocialAccount{
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		TokenExpiresAt: service.GetExpiresAt(int(token.ExpiresIn)),
	}
	return c.sr.SetToken(ctx, acc.ID, &updated)
}

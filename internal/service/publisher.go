package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// TargetResult is the recorded outcome of one delivery attempt.
type TargetResult struct {
	Success         bool   `json:"success"`
	Platform        string `json:"platform"`
	PlatformPostID  string `json:"platform_post_id,omitempty"`
	PlatformPostURL string `json:"platform_post_url,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Publisher fans one post out to its targets. Targets fail independently; the
// post as a whole is published when at least one target made it out, failed
// only when every target failed.
type Publisher interface {
	Publish(ctx context.Context, postID int64) (map[int64]TargetResult, error)
	RefreshEngagement(ctx context.Context, targetID int64) error
}

// AdapterResolver is the slice of platform.Registry the publisher needs.
type AdapterResolver interface {
	Get(p platform.Platform) (platform.Service, bool)
}

// MediaPreparer is the slice of MediaService the publisher needs.
type MediaPreparer interface {
	Prepare(ctx context.Context, assetURL string, account *models.SocialAccount) string
}

type publisher struct {
	pr        repository.PostRepository
	tr        repository.PostTargetRepository
	ar        repository.SocialAccountRepository
	registry  AdapterResolver
	media     MediaPreparer
	secretKey []byte
	now       func() time.Time
}

func NewPublisher(
	pr repository.PostRepository,
	tr repository.PostTargetRepository,
	ar repository.SocialAccountRepository,
	registry AdapterResolver,
	media MediaPreparer,
	secretKey []byte) Publisher {
	return &publisher{
		pr:        pr,
		tr:        tr,
		ar:        ar,
		registry:  registry,
		media:     media,
		secretKey: secretKey,
		now:       time.Now,
	}
}

var ErrPostNotFound = errors.New("post not found")

// Publish runs the delivery state machine for one post: the post moves to
// publishing before the first network call, every target gets exactly one
// attempt this run, and the aggregate status is written after all targets
// have an outcome.
func (p *publisher) Publish(ctx context.Context, postID int64) (map[int64]TargetResult, error) {
	post, err := p.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post %d: %w", postID, err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Status == models.PostStatusPublished {
		return map[int64]TargetResult{}, nil
	}

	// Claim the post before anything goes on the wire. The guarded transition
	// admits exactly one concurrent run; the loser delivers nothing.
	claimed, err := p.pr.MarkPublishing(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("marking post %d publishing: %w", postID, err)
	}
	if !claimed {
		slog.Info("post is already being published by another run", "post_id", postID)
		return map[int64]TargetResult{}, nil
	}

	targets, err := p.tr.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading targets for post %d: %w", postID, err)
	}
	if len(targets) == 0 {
		if err := p.pr.UpdateStatus(ctx, postID, models.PostStatusFailed); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("post %d has no targets", postID)
	}

	results := make(map[int64]TargetResult, len(targets))
	published := 0
	for _, target := range targets {
		// Reruns after a partial failure skip targets that already went out.
		if target.Status == models.PostStatusPublished {
			published++
			results[target.ID] = TargetResult{
				Success:         true,
				PlatformPostID:  target.PlatformPostID,
				PlatformPostURL: target.PlatformPostURL,
			}
			continue
		}

		result := p.publishTarget(ctx, post, target)
		results[target.ID] = result

		if result.Success {
			published++
			if err := p.tr.MarkPublished(ctx, target.ID, result.PlatformPostID, result.PlatformPostURL, p.now()); err != nil {
				slog.Error("failed to record published target", "target_id", target.ID, "error", err)
			}
		} else {
			if err := p.tr.MarkFailed(ctx, target.ID, result.ErrorMessage); err != nil {
				slog.Error("failed to record failed target", "target_id", target.ID, "error", err)
			}
		}
	}

	if published > 0 {
		err = p.pr.MarkPublished(ctx, postID, p.now())
	} else {
		err = p.pr.UpdateStatus(ctx, postID, models.PostStatusFailed)
	}
	if err != nil {
		return results, fmt.Errorf("recording aggregate status for post %d: %w", postID, err)
	}

	slog.Info("publish run finished",
		"post_id", postID, "targets", len(targets), "published", published)
	return results, nil
}

// publishTarget attempts one delivery. It never propagates an error or a
// panic: any failure becomes the target's recorded outcome so a bad target
// cannot take down its siblings.
func (p *publisher) publishTarget(ctx context.Context, post *models.Post, target *models.PostTarget) (result TargetResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while publishing target", "target_id", target.ID, "panic", r)
			result = TargetResult{Success: false, ErrorMessage: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	account, err := p.ar.GetByID(ctx, target.SocialAccountID)
	if err != nil {
		return TargetResult{Success: false, ErrorMessage: fmt.Sprintf("loading account: %v", err)}
	}
	if account == nil {
		return TargetResult{Success: false, ErrorMessage: "social account no longer exists"}
	}
	result.Platform = account.Platform

	svc, ok := p.registry.Get(platform.Platform(account.Platform))
	if !ok {
		result.ErrorMessage = fmt.Sprintf("platform %s is not configured", account.Platform)
		return result
	}

	accessToken, err := p.credential(account)
	if err != nil {
		result.ErrorMessage = "stored credential could not be decrypted"
		return result
	}

	content := post.Content
	if target.Content != "" {
		content = target.Content
	}

	opts := platform.PostOptions{
		AccountID: account.AccountID,
		PageID:    account.PageID,
		Handle:    account.AccountUsername,
		PersonURN: account.AccountID,
		PostType:  instagramPostType(post.PostType),
	}

	pr := p.dispatch(ctx, svc, post, account, content, accessToken, opts)
	return TargetResult{
		Success:         pr.Success,
		Platform:        account.Platform,
		PlatformPostID:  pr.PlatformPostID,
		PlatformPostURL: pr.PlatformPostURL,
		ErrorMessage:    pr.ErrorMessage,
	}
}

func (p *publisher) dispatch(ctx context.Context, svc platform.Service, post *models.Post, account *models.SocialAccount, content, accessToken string, opts platform.PostOptions) platform.PostResult {
	switch post.PostType {
	case models.PostTypeImage, models.PostTypeStory:
		if len(post.MediaURLs) == 0 {
			return platform.PostResult{Success: false, ErrorMessage: "post has no media"}
		}
		mediaURL := p.media.Prepare(ctx, post.MediaURLs[0], account)
		return svc.PostImage(ctx, content, mediaURL, accessToken, opts)

	case models.PostTypeVideo, models.PostTypeReel:
		if len(post.MediaURLs) == 0 {
			return platform.PostResult{Success: false, ErrorMessage: "post has no media"}
		}
		return svc.PostVideo(ctx, content, post.MediaURLs[0], accessToken, opts)

	default:
		return svc.PostText(ctx, content, accessToken, opts)
	}
}

// credential returns the token to hand the adapter. LATE-managed accounts
// keep their marker so the aggregator adapter resolves the server key;
// everything else is decrypted from its at-rest form. Without a configured
// encryption key, tokens are stored and handed over in the clear.
func (p *publisher) credential(account *models.SocialAccount) (string, error) {
	if account.AccessToken == "" || account.AccessToken == models.LateManagedMarker {
		return account.AccessToken, nil
	}
	if len(p.secretKey) == 0 {
		return account.AccessToken, nil
	}
	return utils.Decrypt(account.AccessToken, p.secretKey)
}

// instagramPostType maps the post type onto Instagram's vocabulary; other
// networks ignore the hint.
func instagramPostType(postType string) string {
	switch postType {
	case models.PostTypeStory:
		return "story"
	case models.PostTypeReel:
		return "reel"
	case models.PostTypeImage, models.PostTypeVideo:
		return "feed"
	default:
		return ""
	}
}

// RefreshEngagement pulls current metrics for one published target and stores
// them on the target row.
func (p *publisher) RefreshEngagement(ctx context.Context, targetID int64) error {
	target, err := p.tr.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil || target.Status != models.PostStatusPublished || target.PlatformPostID == "" {
		return errors.New("target has no published platform post")
	}

	account, err := p.ar.GetByID(ctx, target.SocialAccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.New("social account no longer exists")
	}

	svc, ok := p.registry.Get(platform.Platform(account.Platform))
	if !ok {
		return fmt.Errorf("platform %s is not configured", account.Platform)
	}

	accessToken, err := p.credential(account)
	if err != nil {
		return err
	}

	engagement, err := svc.GetEngagement(ctx, target.PlatformPostID, accessToken, platform.PostOptions{
		AccountID: account.AccountID,
		PageID:    account.PageID,
		Handle:    account.AccountUsername,
	})
	if err != nil {
		return fmt.Errorf("fetching engagement: %w", err)
	}

	return p.tr.UpdateEngagement(ctx, targetID, engagement.Likes, engagement.Comments,
		engagement.Shares, engagement.Impressions, engagement.Reach)
}

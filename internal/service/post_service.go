package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, time.Duration, error)
	UploadMedia(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]string, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db *sql.DB
	pr repository.PostRepository
	tr repository.PostTargetRepository
	ac repository.SocialAccountRepository
	r2 *R2Service
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	tr repository.PostTargetRepository,
	ac repository.SocialAccountRepository,
	r2 *R2Service) PostService {
	return &postService{
		db: db,
		pr: pr,
		tr: tr,
		ac: ac,
		r2: r2,
	}
}

var postTypes = map[string]struct{}{
	models.PostTypeText:  {},
	models.PostTypeImage: {},
	models.PostTypeVideo: {},
	models.PostTypeStory: {},
	models.PostTypeReel:  {},
}

// CreatePost validates and stores the post with its targets in one
// transaction. The returned duration is how long until the post is due; zero
// means it should be enqueued immediately (drafts return -1 and are never
// enqueued).
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}
	if pc.Content == "" && len(pc.MediaURLs) == 0 {
		err := errors.New("post needs content or media")
		slog.Info(err.Error())
		return 0, 0, err
	}

	postType := pc.PostType
	if postType == "" {
		postType = models.PostTypeText
		if len(pc.MediaURLs) > 0 {
			postType = models.PostTypeImage
		}
	}
	if _, ok := postTypes[postType]; !ok {
		return 0, 0, fmt.Errorf("unknown post type %q", postType)
	}
	if postType != models.PostTypeText && len(pc.MediaURLs) == 0 {
		return 0, 0, fmt.Errorf("%s posts need media", postType)
	}

	if len(pc.Targets) == 0 {
		err := errors.New("no social accounts selected")
		slog.Error(err.Error())
		return 0, 0, err
	}

	var scheduledAt sql.NullTime
	if pc.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, pc.ScheduledAt)
		if err != nil {
			// The frontend datetime picker omits seconds and zone.
			t, err = time.Parse("2006-01-02T15:04", pc.ScheduledAt)
		}
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Error(err.Error())
			return 0, 0, err
		}
		scheduledAt = sql.NullTime{Time: t, Valid: true}
	}

	status := models.PostStatusScheduled
	if pc.Draft {
		status = models.PostStatusDraft
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:      userID,
		Content:     pc.Content,
		PostType:    postType,
		MediaURLs:   pc.MediaURLs,
		ScheduledAt: scheduledAt,
		Status:      status,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.saveTargets(ctx, tx, userID, postID, pc.Targets); err != nil {
		return 0, 0, fmt.Errorf("error processing targets: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if pc.Draft {
		return postID, -1, nil
	}

	delay := time.Duration(0)
	if scheduledAt.Valid {
		delay = time.Until(scheduledAt.Time)
		if delay < 0 {
			delay = 0
		}
	}
	return postID, delay, nil
}

func (s *postService) saveTargets(ctx context.Context, tx *sql.Tx, userID, postID int64, targets []transfer.TargetCreation) error {
	seen := make(map[int64]struct{}, len(targets))
	for _, tc := range targets {
		if _, dup := seen[tc.SocialAccountID]; dup {
			return fmt.Errorf("social account %d selected twice", tc.SocialAccountID)
		}
		seen[tc.SocialAccountID] = struct{}{}

		exists, err := s.ac.CheckByUserID(ctx, tc.SocialAccountID, userID)
		if err != nil {
			return fmt.Errorf("error checking social account %d: %w", tc.SocialAccountID, err)
		}
		if !exists {
			return fmt.Errorf("social account %d does not exist", tc.SocialAccountID)
		}

		target := models.PostTarget{
			PostID:          postID,
			SocialAccountID: tc.SocialAccountID,
			Content:         tc.Content,
			Status:          models.PostStatusScheduled,
		}
		if _, err := s.tr.Create(ctx, tx, &target); err != nil {
			return fmt.Errorf("error saving target for account %d: %w", tc.SocialAccountID, err)
		}
	}
	return nil
}

// UploadMedia stores uploaded files in R2 and returns their public URLs, in
// input order.
func (s *postService) UploadMedia(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, errors.New("no files provided")
	}

	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	urls := make([]string, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, errors.New("unsupported file type")
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		key, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		key += "." + fileType.Extension

		url, err := s.r2.UploadToR2(ctx, key, fileBytes, fileType.MIME.Value)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	post.Targets, err = s.tr.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post targets")
	}

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts")
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	err = s.pr.Remove(ctx, postID)
	if err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}

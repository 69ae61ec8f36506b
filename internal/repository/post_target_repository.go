package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PostTargetRepository interface {
	Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PostTarget, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error)
	UpdateStatus(ctx context.Context, targetID int64, status string) error
	MarkPublished(ctx context.Context, targetID int64, platformPostID, platformPostURL string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, targetID int64, errorMessage string) error
	UpdateEngagement(ctx context.Context, targetID int64, likes, comments, shares, impressions, reach int) error
}

type postTargetRepository struct {
	db *sql.DB
}

func NewPostTargetRepository(db *sql.DB) PostTargetRepository {
	return &postTargetRepository{db: db}
}

const targetColumns = `id, post_id, social_account_id, content, status, platform_post_id,
	platform_post_url, error_message, likes_count, comments_count, shares_count,
	impressions, reach, published_at, created_at`

func scanTarget(row interface{ Scan(...any) error }) (*models.PostTarget, error) {
	var t models.PostTarget
	err := row.Scan(&t.ID, &t.PostID, &t.SocialAccountID, &t.Content, &t.Status,
		&t.PlatformPostID, &t.PlatformPostURL, &t.ErrorMessage, &t.LikesCount,
		&t.CommentsCount, &t.SharesCount, &t.Impressions, &t.Reach,
		&t.PublishedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *postTargetRepository) Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error) {
	query := `
		INSERT INTO post_targets (post_id, social_account_id, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, target.PostID, target.SocialAccountID,
			target.Content, target.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, target.PostID, target.SocialAccountID,
			target.Content, target.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postTargetRepository) GetByID(ctx context.Context, id int64) (*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE id = $1`

	target, err := scanTarget(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return target, nil
}

func (r *postTargetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE post_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

func (r *postTargetRepository) UpdateStatus(ctx context.Context, targetID int64, status string) error {
	query := `UPDATE post_targets SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, targetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) MarkPublished(ctx context.Context, targetID int64, platformPostID, platformPostURL string, publishedAt time.Time) error {
	query := `
		UPDATE post_targets
		SET status = $1,
			platform_post_id = $2,
			platform_post_url = $3,
			error_message = '',
			published_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished,
		platformPostID, platformPostURL, publishedAt, targetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) MarkFailed(ctx context.Context, targetID int64, errorMessage string) error {
	query := `
		UPDATE post_targets
		SET status = $1,
			error_message = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, errorMessage, targetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) UpdateEngagement(ctx context.Context, targetID int64, likes, comments, shares, impressions, reach int) error {
	query := `
		UPDATE post_targets
		SET likes_count = $1,
			comments_count = $2,
			shares_count = $3,
			impressions = $4,
			reach = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query, likes, comments, shares, impressions, reach, targetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

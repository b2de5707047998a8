package readmodel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var channelProfileQuery = newPipeline().
	Stage("matched", `
		SELECT id, username, email, full_name, avatar, cover_image
		FROM users
		WHERE username = lower($1)`).
	Stage("subscribers", `
		SELECT s.subscriber_id
		FROM subscriptions s
		JOIN matched m ON s.channel_id = m.id`).
	Stage("subscribed_to", `
		SELECT s.channel_id
		FROM subscriptions s
		JOIN matched m ON s.subscriber_id = m.id`).
	Stage("enriched", `
		SELECT m.full_name, m.username, m.avatar, m.cover_image, m.email,
			(SELECT count(*) FROM subscribers) AS subscribers_count,
			(SELECT count(*) FROM subscribed_to) AS channels_subscribed_to_count,
			EXISTS (SELECT 1 FROM subscribers WHERE subscriber_id = $2) AS is_subscribed
		FROM matched m`).
	Select(`
		SELECT full_name, username, subscribers_count, channels_subscribed_to_count,
			is_subscribed, avatar, cover_image, email
		FROM enriched`)

// The owner stage keeps only the first matching user per video.
var watchHistoryQuery = newPipeline().
	Stage("history", `
		SELECT video_id, position
		FROM watch_history
		WHERE user_id = $1`).
	Stage("watched_videos", `
		SELECT v.id, v.video_file, v.thumbnail, v.owner_id, v.title, v.description,
			v.duration, v.views, v.is_published, v.created_at, v.updated_at, h.position
		FROM history h
		JOIN videos v ON v.id = h.video_id`).
	Stage("owners", `
		SELECT wv.*, o.full_name AS owner_full_name, o.username AS owner_username, o.avatar AS owner_avatar
		FROM watched_videos wv
		LEFT JOIN LATERAL (
			SELECT u.full_name, u.username, u.avatar
			FROM users u
			WHERE u.id = wv.owner_id
			LIMIT 1
		) o ON true`).
	Select(`
		SELECT id, video_file, thumbnail, title, description, duration, views, is_published,
			created_at, updated_at, owner_full_name, owner_username, owner_avatar
		FROM owners
		ORDER BY position ASC`)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ChannelProfile aggregates subscription counts for the channel named username
// as seen by viewerID.
func (r *Repository) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	var p ChannelProfile
	err := r.db.QueryRowContext(ctx, channelProfileQuery, username, viewerID).Scan(
		&p.FullName, &p.Username, &p.SubscribersCount, &p.ChannelsSubscribedToCount,
		&p.IsSubscribed, &p.Avatar, &p.CoverImage, &p.Email,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChannelProfile{}, ErrChannelNotFound
		}
		return ChannelProfile{}, fmt.Errorf("query channel profile: %w", err)
	}
	return p, nil
}

func (r *Repository) WatchHistory(ctx context.Context, userID string) ([]HistoryVideo, error) {
	rows, err := r.db.QueryContext(ctx, watchHistoryQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	videos := make([]HistoryVideo, 0)
	for rows.Next() {
		var v HistoryVideo
		var ownerFullName, ownerUsername, ownerAvatar sql.NullString
		if err := rows.Scan(&v.ID, &v.VideoFile, &v.Thumbnail, &v.Title, &v.Description, &v.Duration,
			&v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
			&ownerFullName, &ownerUsername, &ownerAvatar); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		if ownerUsername.Valid {
			v.Owner = &VideoOwner{
				FullName: ownerFullName.String,
				Username: ownerUsername.String,
				Avatar:   ownerAvatar.String,
			}
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return videos, nil
}

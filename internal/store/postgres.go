package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/politrack/sentinel/internal/models"
)

// PostgresStore implements the Store interface using pgx/v5
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Posts ---

func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) (bool, error) {
	sentiments, err := json.Marshal(post.EntitySentiments)
	if err != nil {
		return false, fmt.Errorf("marshal entity sentiments: %w", err)
	}

	var comparative []byte
	if post.ComparativeAnalysis != nil {
		comparative, err = json.Marshal(post.ComparativeAnalysis)
		if err != nil {
			return false, fmt.Errorf("marshal comparative analysis: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO posts (id, platform, external_post_id, author, content, url,
		   likes, shares, comments, views, posted_at, collected_at,
		   primary_cluster_id, entity_sentiments, comparative_analysis,
		   sentiment_score, sentiment_label, threat_level, responded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (platform, external_post_id) DO NOTHING`,
		post.ID, post.Platform, post.ExternalPostID, post.Author, post.Content, post.URL,
		post.Engagement.Likes, post.Engagement.Shares, post.Engagement.Comments, post.Engagement.Views,
		post.PostedAt, post.CollectedAt, post.PrimaryClusterID, sentiments, comparative,
		post.SentimentScore, post.SentimentLabel, post.ThreatLevel, post.Responded)
	if err != nil {
		return false, fmt.Errorf("create post: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const postColumns = `id, platform, external_post_id, author, content, url,
	likes, shares, comments, views, posted_at, collected_at,
	primary_cluster_id, entity_sentiments, comparative_analysis,
	sentiment_score, sentiment_label, threat_level, responded`

func (s *PostgresStore) GetPostByExternalID(ctx context.Context, platform models.Platform, externalID string) (*models.Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE platform = $1 AND external_post_id = $2`,
		platform, externalID)

	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) ListPostsSince(ctx context.Context, since time.Time) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE collected_at >= $1 ORDER BY collected_at DESC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) CountPostsByCluster(ctx context.Context, clusterID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM posts WHERE primary_cluster_id = $1`, clusterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var sentiments []byte
	var comparative []byte

	err := row.Scan(&post.ID, &post.Platform, &post.ExternalPostID, &post.Author, &post.Content, &post.URL,
		&post.Engagement.Likes, &post.Engagement.Shares, &post.Engagement.Comments, &post.Engagement.Views,
		&post.PostedAt, &post.CollectedAt, &post.PrimaryClusterID, &sentiments, &comparative,
		&post.SentimentScore, &post.SentimentLabel, &post.ThreatLevel, &post.Responded)
	if err != nil {
		return nil, err
	}

	if len(sentiments) > 0 {
		if err := json.Unmarshal(sentiments, &post.EntitySentiments); err != nil {
			return nil, fmt.Errorf("unmarshal entity sentiments: %w", err)
		}
	}
	if len(comparative) > 0 {
		post.ComparativeAnalysis = &models.ComparativeAnalysis{}
		if err := json.Unmarshal(comparative, post.ComparativeAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal comparative analysis: %w", err)
		}
	}
	return &post, nil
}

// --- Campaigns ---

const campaignColumns = `id, name, description, threat_level, status,
	keywords, hashtags, accounts, total_posts, total_engagement,
	average_sentiment, velocity, first_detected_at, last_updated_at,
	acknowledged_by, acknowledged_at, resolution_note`

func (s *PostgresStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	keywords, hashtags, accounts, err := marshalCampaignSets(campaign)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		campaign.ID, campaign.Name, campaign.Description, campaign.ThreatLevel, campaign.Status,
		keywords, hashtags, accounts, campaign.TotalPosts, campaign.TotalEngagement,
		campaign.AverageSentiment, campaign.Velocity, campaign.FirstDetectedAt, campaign.LastUpdatedAt,
		nullable(campaign.AcknowledgedBy), campaign.AcknowledgedAt, nullable(campaign.ResolutionNote))
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	keywords, hashtags, accounts, err := marshalCampaignSets(campaign)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET name = $2, description = $3, threat_level = $4, status = $5,
		   keywords = $6, hashtags = $7, accounts = $8, total_posts = $9, total_engagement = $10,
		   average_sentiment = $11, velocity = $12, last_updated_at = $13,
		   acknowledged_by = $14, acknowledged_at = $15, resolution_note = $16
		 WHERE id = $1`,
		campaign.ID, campaign.Name, campaign.Description, campaign.ThreatLevel, campaign.Status,
		keywords, hashtags, accounts, campaign.TotalPosts, campaign.TotalEngagement,
		campaign.AverageSentiment, campaign.Velocity, campaign.LastUpdatedAt,
		nullable(campaign.AcknowledgedBy), campaign.AcknowledgedAt, nullable(campaign.ResolutionNote))
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	campaign, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ThreatLevel != "" {
		args = append(args, filter.ThreatLevel)
		query += fmt.Sprintf(" AND threat_level = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND last_updated_at >= $%d", len(args))
	}
	query += " ORDER BY last_updated_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var campaign models.Campaign
	var keywords, hashtags, accounts []byte
	var acknowledgedBy, resolutionNote *string

	err := row.Scan(&campaign.ID, &campaign.Name, &campaign.Description, &campaign.ThreatLevel, &campaign.Status,
		&keywords, &hashtags, &accounts, &campaign.TotalPosts, &campaign.TotalEngagement,
		&campaign.AverageSentiment, &campaign.Velocity, &campaign.FirstDetectedAt, &campaign.LastUpdatedAt,
		&acknowledgedBy, &campaign.AcknowledgedAt, &resolutionNote)
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		data []byte
		dest *[]string
	}{
		{keywords, &campaign.Keywords},
		{hashtags, &campaign.Hashtags},
		{accounts, &campaign.Accounts},
	} {
		if len(pair.data) > 0 {
			if err := json.Unmarshal(pair.data, pair.dest); err != nil {
				return nil, fmt.Errorf("unmarshal campaign set: %w", err)
			}
		}
	}

	if acknowledgedBy != nil {
		campaign.AcknowledgedBy = *acknowledgedBy
	}
	if resolutionNote != nil {
		campaign.ResolutionNote = *resolutionNote
	}
	return &campaign, nil
}

func marshalCampaignSets(campaign *models.Campaign) (keywords, hashtags, accounts []byte, err error) {
	if keywords, err = json.Marshal(campaign.Keywords); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal keywords: %w", err)
	}
	if hashtags, err = json.Marshal(campaign.Hashtags); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal hashtags: %w", err)
	}
	if accounts, err = json.Marshal(campaign.Accounts); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal accounts: %w", err)
	}
	return keywords, hashtags, accounts, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies a social media source
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformReddit    Platform = "reddit"
)

// AllPlatforms lists every platform the pipeline can collect from
var AllPlatforms = []Platform{
	PlatformTwitter,
	PlatformFacebook,
	PlatformInstagram,
	PlatformYouTube,
	PlatformReddit,
}

// ClusterType distinguishes the tracked party from its competitors
type ClusterType string

const (
	ClusterOwn        ClusterType = "own"
	ClusterCompetitor ClusterType = "competitor"
)

// Cluster is a named set of tracked keywords representing one political entity
type Cluster struct {
	ID         uuid.UUID            `json:"id"`
	Name       string               `json:"name"`
	Type       ClusterType          `json:"type"`
	Keywords   []string             `json:"keywords"`
	Thresholds map[Platform]int     `json:"thresholds"` // minimum engagement per platform
	Active     bool                 `json:"active"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Engagement holds the raw interaction counts reported by a platform
type Engagement struct {
	Likes    int `json:"likes"`
	Shares   int `json:"shares"`
	Comments int `json:"comments"`
	Views    int `json:"views"`
}

// Total returns the combined engagement used for threshold filtering
func (e Engagement) Total() int {
	return e.Likes + e.Shares + e.Comments
}

// SentimentLabel classifies an entity sentiment score
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "Positive"
	SentimentNegative SentimentLabel = "Negative"
	SentimentNeutral  SentimentLabel = "Neutral"
)

// ComponentScores breaks a fused sentiment into its weighted signals
type ComponentScores struct {
	Text          float64 `json:"text"`
	Emoji         float64 `json:"emoji"`
	Hashtag       float64 `json:"hashtag"`
	TextWeight    float64 `json:"text_weight"`
	EmojiWeight   float64 `json:"emoji_weight"`
	HashtagWeight float64 `json:"hashtag_weight"`
}

// EntitySentiment is the per-mentioned-entity result of sentiment fusion
type EntitySentiment struct {
	Entity          string          `json:"entity"`
	Label           SentimentLabel  `json:"label"`
	Score           float64         `json:"score"`      // [-1, 1]
	Confidence      float64         `json:"confidence"` // [0, 1]
	Components      ComponentScores `json:"components"`
	MentionCount    int             `json:"mention_count"`
	Sarcasm         bool            `json:"sarcasm"`
	SarcasmReason   string          `json:"sarcasm_reason,omitempty"`
	ThreatLevel     float64         `json:"threat_level"` // [0, 1]
	ThreatReasoning string          `json:"threat_reasoning,omitempty"`
}

// ComparisonType classifies how two or more entities relate in one post
type ComparisonType string

const (
	ComparisonDirectContrast     ComparisonType = "Direct Contrast"
	ComparisonNeutralCoexistence ComparisonType = "Neutral Coexistence"
	ComparisonImplicit           ComparisonType = "Implicit"
)

// ComparativeAnalysis is produced only when a post mentions two or more entities
type ComparativeAnalysis struct {
	HasComparison  bool           `json:"has_comparison"`
	ComparisonType ComparisonType `json:"comparison_type"`
	Entities       []string       `json:"entities"`
	Summary        string         `json:"summary"`
}

// Post is a single collected platform post with fused per-entity intelligence.
// A post mentioning N entities is stored exactly once; EntitySentiments carries
// an entry only for entities actually mentioned in the text.
type Post struct {
	ID                  uuid.UUID                  `json:"id"`
	Platform            Platform                   `json:"platform"`
	ExternalPostID      string                     `json:"external_post_id"`
	Author              string                     `json:"author"`
	Content             string                     `json:"content"`
	URL                 string                     `json:"url"`
	Engagement          Engagement                 `json:"engagement"`
	PostedAt            time.Time                  `json:"posted_at"`
	CollectedAt         time.Time                  `json:"collected_at"`
	PrimaryClusterID    uuid.UUID                  `json:"primary_cluster_id"`
	EntitySentiments    map[string]EntitySentiment `json:"entity_sentiments"`
	ComparativeAnalysis *ComparativeAnalysis       `json:"comparative_analysis,omitempty"`
	SentimentScore      float64                    `json:"sentiment_score"`
	SentimentLabel      SentimentLabel             `json:"sentiment_label"`
	ThreatLevel         float64                    `json:"threat_level"`
	Responded           bool                       `json:"has_been_responded_to"`
}

// ThreatLevel grades a campaign's severity
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// CampaignStatus is a forward-only lifecycle:
// monitoring -> active -> acknowledged -> resolved
type CampaignStatus string

const (
	CampaignMonitoring   CampaignStatus = "monitoring"
	CampaignActive       CampaignStatus = "active"
	CampaignAcknowledged CampaignStatus = "acknowledged"
	CampaignResolved     CampaignStatus = "resolved"
)

var campaignStatusRank = map[CampaignStatus]int{
	CampaignMonitoring:   0,
	CampaignActive:       1,
	CampaignAcknowledged: 2,
	CampaignResolved:     3,
}

// CanTransition reports whether moving from to next respects the forward-only
// lifecycle. Staying on the same status is always allowed.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	from, ok := campaignStatusRank[s]
	if !ok {
		return false
	}
	to, ok := campaignStatusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Campaign is a detected group of related posts forming a coordinated or viral
// narrative. Campaigns are never deleted, only transitioned to resolved.
type Campaign struct {
	ID               uuid.UUID      `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ThreatLevel      ThreatLevel    `json:"threat_level"`
	Status           CampaignStatus `json:"status"`
	Keywords         []string       `json:"keywords"`
	Hashtags         []string       `json:"hashtags"`
	Accounts         []string       `json:"accounts"`
	TotalPosts       int            `json:"total_posts"`
	TotalEngagement  int            `json:"total_engagement"`
	AverageSentiment float64        `json:"average_sentiment"`
	Velocity         float64        `json:"campaign_velocity"` // posts per hour
	FirstDetectedAt  time.Time      `json:"first_detected_at"`
	LastUpdatedAt    time.Time      `json:"last_updated_at"`
	AcknowledgedBy   string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time     `json:"acknowledged_at,omitempty"`
	ResolutionNote   string         `json:"resolution_note,omitempty"`
}

// TaskType identifies what kind of work a collection task performs
type TaskType string

const (
	TaskScheduled TaskType = "scheduled"
	TaskCluster   TaskType = "cluster"
	TaskEmergency TaskType = "emergency"
	TaskDetection TaskType = "detection"
)

// TaskStatus is the lifecycle of a collection task
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// ErrorClass distinguishes why a task failed so operators can tell a temporary
// outage from a configuration problem
type ErrorClass string

const (
	ErrorNone        ErrorClass = ""
	ErrorTransient   ErrorClass = "transient"
	ErrorAuth        ErrorClass = "auth"
	ErrorRateLimited ErrorClass = "rate_limited"
	ErrorInternal    ErrorClass = "internal"
)

// Task records one unit of scheduled or on-demand work. Tasks are transient and
// exist only for operational visibility.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	ClusterID   uuid.UUID  `json:"cluster_id,omitempty"`
	Platform    Platform   `json:"platform,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	Priority    int        `json:"priority"`
	Attempts    int        `json:"attempts"`
	ErrorClass  ErrorClass `json:"error_class,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EventType enumerates notification events pushed to subscribers
type EventType string

const (
	EventNewPost            EventType = "new_post"
	EventAlert              EventType = "alert"
	EventCampaignDetected   EventType = "campaign_detected"
	EventCampaignEscalation EventType = "campaign_escalation"
)

// Event is the notification payload schema: {"type": ..., "data": ...}
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

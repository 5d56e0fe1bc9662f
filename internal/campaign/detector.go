package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/notifications"
	"github.com/politrack/sentinel/internal/store"
)

// ErrInvalidTransition is returned when an operator tries to move a campaign
// backwards through its lifecycle.
var ErrInvalidTransition = errors.New("invalid campaign status transition")

const (
	// Posts scoring at or below this qualify for campaign grouping even
	// without unusual engagement.
	qualifyingSentiment = -0.2
	// Posts this engaged qualify regardless of sentiment.
	qualifyingEngagement = 1000
	// Velocity is measured over this trailing window.
	velocityWindow = 6 * time.Hour
	// Keep signal lists on campaigns bounded.
	maxSignals = 20
)

// RunResult summarizes one detection pass
type RunResult struct {
	Scanned   int `json:"scanned"`
	Groups    int `json:"groups"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Escalated int `json:"escalated"`
	Resolved  int `json:"resolved"`
}

// Detector groups recent hostile or unusually engaged posts into coordinated
// campaigns and walks each campaign through its lifecycle.
type Detector struct {
	config    *config.Config
	store     store.Store
	publisher notifications.Publisher
	now       func() time.Time
}

// NewDetector creates a campaign detector
func NewDetector(cfg *config.Config, st store.Store, publisher notifications.Publisher) *Detector {
	return &Detector{
		config:    cfg,
		store:     st,
		publisher: publisher,
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// group is a set of related posts plus the signals that bind them
type group struct {
	posts    []*models.Post
	hashtags map[string]int
	accounts map[string]int
	keywords map[string]int
}

// Run executes one detection pass over the configured window. Reruns over the
// same posts are safe: campaign counters only advance for posts collected
// after the campaign's last update.
func (d *Detector) Run(ctx context.Context) (RunResult, error) {
	now := d.now().UTC()
	var result RunResult

	posts, err := d.store.ListPostsSince(ctx, now.Add(-d.config.CampaignWindow))
	if err != nil {
		return result, fmt.Errorf("list recent posts: %w", err)
	}
	result.Scanned = len(posts)

	qualifying := make([]*models.Post, 0, len(posts))
	for _, post := range posts {
		if post.SentimentScore <= qualifyingSentiment || post.Engagement.Total() >= qualifyingEngagement {
			qualifying = append(qualifying, post)
		}
	}

	groups := buildGroups(qualifying)
	result.Groups = len(groups)

	campaigns, err := d.store.ListCampaigns(ctx, store.CampaignFilter{})
	if err != nil {
		return result, fmt.Errorf("list campaigns: %w", err)
	}

	for _, g := range groups {
		matched := matchCampaign(campaigns, g)
		if matched != nil {
			updated, escalated, err := d.updateCampaign(ctx, matched, g, now)
			if err != nil {
				return result, err
			}
			if updated {
				result.Updated++
			}
			if escalated {
				result.Escalated++
			}
			continue
		}

		velocity := groupVelocity(g, now)
		if len(g.posts) < d.config.CampaignMinPosts || velocity < d.config.CampaignMinVelocity {
			continue
		}

		created, escalated, err := d.createCampaign(ctx, g, velocity, now)
		if err != nil {
			return result, err
		}
		campaigns = append(campaigns, created)
		result.Created++
		if escalated {
			result.Escalated++
		}
	}

	resolved, err := d.resolveQuiet(ctx, campaigns, now)
	if err != nil {
		return result, err
	}
	result.Resolved = resolved

	logrus.WithFields(logrus.Fields{
		"scanned":   result.Scanned,
		"groups":    result.Groups,
		"created":   result.Created,
		"updated":   result.Updated,
		"escalated": result.Escalated,
		"resolved":  result.Resolved,
	}).Info("Campaign detection pass finished")

	return result, nil
}

// buildGroups assigns each post to the first group sharing a hashtag, an
// author, or enough content overlap; otherwise it starts a new group.
func buildGroups(posts []*models.Post) []*group {
	sorted := make([]*models.Post, len(posts))
	copy(sorted, posts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CollectedAt.Before(sorted[j].CollectedAt)
	})

	var groups []*group
	for _, post := range sorted {
		assigned := false
		for _, g := range groups {
			if g.related(post) {
				g.add(post)
				assigned = true
				break
			}
		}
		if !assigned {
			g := &group{
				hashtags: make(map[string]int),
				accounts: make(map[string]int),
				keywords: make(map[string]int),
			}
			g.add(post)
			groups = append(groups, g)
		}
	}
	return groups
}

func (g *group) add(post *models.Post) {
	g.posts = append(g.posts, post)
	for _, tag := range extractHashtags(post.Content) {
		g.hashtags[tag]++
	}
	if post.Author != "" {
		g.accounts[strings.ToLower(post.Author)]++
	}
	for entity := range post.EntitySentiments {
		g.keywords[strings.ToLower(entity)]++
	}
}

// related reports whether the post shares at least one hashtag, one author,
// or two keywords with the group.
func (g *group) related(post *models.Post) bool {
	for _, tag := range extractHashtags(post.Content) {
		if g.hashtags[tag] > 0 {
			return true
		}
	}
	if post.Author != "" && g.accounts[strings.ToLower(post.Author)] > 0 {
		return true
	}
	shared := 0
	for entity := range post.EntitySentiments {
		if g.keywords[strings.ToLower(entity)] > 0 {
			shared++
		}
	}
	return shared >= 2
}

// matchCampaign finds an unresolved campaign whose signals overlap the group
func matchCampaign(campaigns []*models.Campaign, g *group) *models.Campaign {
	for _, campaign := range campaigns {
		if campaign.Status == models.CampaignResolved {
			continue
		}
		if overlap(campaign.Hashtags, g.hashtags) >= 1 ||
			overlap(campaign.Accounts, g.accounts) >= 1 ||
			overlap(campaign.Keywords, g.keywords) >= 2 {
			return campaign
		}
	}
	return nil
}

func overlap(list []string, set map[string]int) int {
	n := 0
	for _, v := range list {
		if set[strings.ToLower(v)] > 0 {
			n++
		}
	}
	return n
}

func (d *Detector) createCampaign(ctx context.Context, g *group, velocity float64, now time.Time) (*models.Campaign, bool, error) {
	avg := averageSentiment(g.posts)
	campaign := &models.Campaign{
		ID:               uuid.New(),
		Name:             campaignName(g),
		Description:      fmt.Sprintf("Coordinated activity across %d posts in the last %s", len(g.posts), d.config.CampaignWindow),
		ThreatLevel:      d.deriveThreat(avg, velocity),
		Status:           models.CampaignMonitoring,
		Keywords:         topSignals(g.keywords),
		Hashtags:         topSignals(g.hashtags),
		Accounts:         topSignals(g.accounts),
		TotalPosts:       len(g.posts),
		TotalEngagement:  totalEngagement(g.posts),
		AverageSentiment: avg,
		Velocity:         velocity,
		FirstDetectedAt:  now,
		LastUpdatedAt:    now,
	}

	if err := d.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, false, fmt.Errorf("create campaign: %w", err)
	}
	logrus.Infof("Detected campaign %q: %d posts, velocity %.1f/h, threat %s",
		campaign.Name, campaign.TotalPosts, campaign.Velocity, campaign.ThreatLevel)
	d.publisher.Publish(models.Event{Type: models.EventCampaignDetected, Data: campaign})

	escalated, err := d.maybeEscalate(ctx, campaign, 0)
	if err != nil {
		return nil, false, err
	}
	return campaign, escalated, nil
}

func (d *Detector) updateCampaign(ctx context.Context, campaign *models.Campaign, g *group, now time.Time) (bool, bool, error) {
	var fresh []*models.Post
	for _, post := range g.posts {
		if post.CollectedAt.After(campaign.LastUpdatedAt) {
			fresh = append(fresh, post)
		}
	}

	velocity := groupVelocity(g, now)
	if len(fresh) == 0 {
		// Nothing new since the last pass. Velocity still decays, which
		// can de-escalate the threat grade. LastUpdatedAt stays put so
		// the quiet timeout keeps counting.
		threat := d.deriveThreat(campaign.AverageSentiment, velocity)
		if campaign.Velocity == velocity && campaign.ThreatLevel == threat {
			return false, false, nil
		}
		campaign.Velocity = velocity
		campaign.ThreatLevel = threat
		if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
			return false, false, fmt.Errorf("update campaign %s: %w", campaign.ID, err)
		}
		return false, false, nil
	}

	priorVelocity := campaign.Velocity

	oldTotal := campaign.TotalPosts
	campaign.TotalPosts += len(fresh)
	campaign.TotalEngagement += totalEngagement(fresh)
	sum := campaign.AverageSentiment * float64(oldTotal)
	for _, post := range fresh {
		sum += post.SentimentScore
	}
	campaign.AverageSentiment = sum / float64(campaign.TotalPosts)
	campaign.Velocity = velocity
	campaign.ThreatLevel = d.deriveThreat(campaign.AverageSentiment, velocity)
	campaign.Keywords = mergeSignals(campaign.Keywords, g.keywords)
	campaign.Hashtags = mergeSignals(campaign.Hashtags, g.hashtags)
	campaign.Accounts = mergeSignals(campaign.Accounts, g.accounts)
	campaign.LastUpdatedAt = now

	if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
		return false, false, fmt.Errorf("update campaign %s: %w", campaign.ID, err)
	}

	escalated, err := d.maybeEscalate(ctx, campaign, priorVelocity)
	if err != nil {
		return false, false, err
	}
	return true, escalated, nil
}

// maybeEscalate promotes a monitoring campaign to active when it crosses the
// velocity or threat bar, and re-raises the alarm for a campaign that is
// already active but still accelerating past the velocity bar.
func (d *Detector) maybeEscalate(ctx context.Context, campaign *models.Campaign, priorVelocity float64) (bool, error) {
	hot := campaign.Velocity >= d.config.EscalationVelocity ||
		campaign.ThreatLevel == models.ThreatHigh ||
		campaign.ThreatLevel == models.ThreatCritical
	if !hot {
		return false, nil
	}

	switch campaign.Status {
	case models.CampaignMonitoring:
		campaign.Status = models.CampaignActive
		if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
			return false, fmt.Errorf("escalate campaign %s: %w", campaign.ID, err)
		}
		logrus.Warnf("Campaign %q escalated to active (velocity %.1f/h, threat %s)",
			campaign.Name, campaign.Velocity, campaign.ThreatLevel)
		d.publisher.Publish(models.Event{Type: models.EventCampaignEscalation, Data: campaign})
		return true, nil
	case models.CampaignActive:
		if campaign.Velocity >= d.config.EscalationVelocity && campaign.Velocity > priorVelocity {
			logrus.Warnf("Campaign %q accelerating while active (velocity %.1f/h, was %.1f/h)",
				campaign.Name, campaign.Velocity, priorVelocity)
			d.publisher.Publish(models.Event{Type: models.EventCampaignEscalation, Data: campaign})
			return true, nil
		}
	}
	return false, nil
}

// resolveQuiet closes campaigns with no matching posts for the quiet timeout
func (d *Detector) resolveQuiet(ctx context.Context, campaigns []*models.Campaign, now time.Time) (int, error) {
	resolved := 0
	for _, campaign := range campaigns {
		if campaign.Status == models.CampaignResolved {
			continue
		}
		if now.Sub(campaign.LastUpdatedAt) < d.config.CampaignQuietTimeout {
			continue
		}
		if !campaign.Status.CanTransition(models.CampaignResolved) {
			continue
		}

		campaign.Status = models.CampaignResolved
		campaign.ResolutionNote = fmt.Sprintf("auto-resolved after %s without new posts", d.config.CampaignQuietTimeout)
		if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
			return resolved, fmt.Errorf("resolve campaign %s: %w", campaign.ID, err)
		}
		logrus.Infof("Campaign %q auto-resolved after quiet period", campaign.Name)
		resolved++
	}
	return resolved, nil
}

// Acknowledge records that an operator has taken ownership of a campaign
func (d *Detector) Acknowledge(ctx context.Context, id uuid.UUID, by, note string) (*models.Campaign, error) {
	campaign, err := d.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.CanTransition(models.CampaignAcknowledged) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, campaign.Status, models.CampaignAcknowledged)
	}

	now := d.now().UTC()
	campaign.Status = models.CampaignAcknowledged
	campaign.AcknowledgedBy = by
	campaign.AcknowledgedAt = &now
	if note != "" {
		campaign.ResolutionNote = note
	}
	if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Resolve closes a campaign on operator request
func (d *Detector) Resolve(ctx context.Context, id uuid.UUID, note string) (*models.Campaign, error) {
	campaign, err := d.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignResolved {
		return nil, fmt.Errorf("%w: already resolved", ErrInvalidTransition)
	}

	campaign.Status = models.CampaignResolved
	if note != "" {
		campaign.ResolutionNote = note
	}
	campaign.LastUpdatedAt = d.now().UTC()
	if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Stats aggregates campaign counts for the dashboard
type Stats struct {
	Total           int                          `json:"total"`
	ByStatus        map[models.CampaignStatus]int `json:"by_status"`
	ByThreat        map[models.ThreatLevel]int    `json:"by_threat"`
	TotalPosts      int                          `json:"total_posts"`
	TotalEngagement int                          `json:"total_engagement"`
}

func (d *Detector) Stats(ctx context.Context) (*Stats, error) {
	campaigns, err := d.store.ListCampaigns(ctx, store.CampaignFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus: make(map[models.CampaignStatus]int),
		ByThreat: make(map[models.ThreatLevel]int),
	}
	for _, campaign := range campaigns {
		stats.Total++
		stats.ByStatus[campaign.Status]++
		stats.ByThreat[campaign.ThreatLevel]++
		stats.TotalPosts += campaign.TotalPosts
		stats.TotalEngagement += campaign.TotalEngagement
	}
	return stats, nil
}

func (d *Detector) deriveThreat(avgSentiment, velocity float64) models.ThreatLevel {
	switch {
	case avgSentiment <= -0.6 && velocity >= d.config.EscalationVelocity:
		return models.ThreatCritical
	case avgSentiment <= -0.5 || velocity >= d.config.EscalationVelocity:
		return models.ThreatHigh
	case avgSentiment <= -0.3:
		return models.ThreatMedium
	default:
		return models.ThreatLow
	}
}

// groupVelocity is posts per hour over the trailing velocity window
func groupVelocity(g *group, now time.Time) float64 {
	cutoff := now.Add(-velocityWindow)
	recent := 0
	for _, post := range g.posts {
		if post.CollectedAt.After(cutoff) {
			recent++
		}
	}
	return float64(recent) / velocityWindow.Hours()
}

func averageSentiment(posts []*models.Post) float64 {
	if len(posts) == 0 {
		return 0
	}
	sum := 0.0
	for _, post := range posts {
		sum += post.SentimentScore
	}
	return sum / float64(len(posts))
}

func totalEngagement(posts []*models.Post) int {
	total := 0
	for _, post := range posts {
		total += post.Engagement.Total()
	}
	return total
}

// campaignName picks the strongest signal as the human-facing label
func campaignName(g *group) string {
	if tag := strongest(g.hashtags); tag != "" {
		return fmt.Sprintf("#%s campaign", tag)
	}
	if kw := strongest(g.keywords); kw != "" {
		return fmt.Sprintf("%s pressure campaign", kw)
	}
	return "coordinated activity"
}

func strongest(set map[string]int) string {
	best, bestCount := "", 0
	for signal, count := range set {
		if count > bestCount || (count == bestCount && signal < best) {
			best, bestCount = signal, count
		}
	}
	return best
}

// topSignals returns the set's keys ordered by frequency, capped
func topSignals(set map[string]int) []string {
	signals := make([]string, 0, len(set))
	for signal := range set {
		signals = append(signals, signal)
	}
	sort.Slice(signals, func(i, j int) bool {
		if set[signals[i]] != set[signals[j]] {
			return set[signals[i]] > set[signals[j]]
		}
		return signals[i] < signals[j]
	})
	if len(signals) > maxSignals {
		signals = signals[:maxSignals]
	}
	return signals
}

func mergeSignals(existing []string, incoming map[string]int) []string {
	seen := make(map[string]bool, len(existing))
	for _, signal := range existing {
		seen[strings.ToLower(signal)] = true
	}
	merged := existing
	for signal := range incoming {
		if !seen[signal] {
			merged = append(merged, signal)
			seen[signal] = true
		}
	}
	sort.Strings(merged[len(existing):])
	if len(merged) > maxSignals {
		merged = merged[:maxSignals]
	}
	return merged
}

// extractHashtags pulls lowercase hashtag bodies out of post text
func extractHashtags(text string) []string {
	var tags []string
	for _, field := range strings.Fields(text) {
		if !strings.HasPrefix(field, "#") || len(field) < 2 {
			continue
		}
		tag := strings.ToLower(strings.TrimFunc(field[1:], func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9')
		}))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

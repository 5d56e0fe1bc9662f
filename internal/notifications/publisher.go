package notifications

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/models"
)

// Publisher delivers pipeline events to subscribers. Publish never blocks
// the caller; slow consumers lose events rather than stalling collection.
type Publisher interface {
	Publish(event models.Event)
}

// Hub fans events out to in-process subscribers and, when configured,
// forwards them to an HTTP webhook and sends escalation emails.
type Hub struct {
	config *config.Config
	client *resty.Client

	mu   sync.Mutex
	subs map[int]chan models.Event
	next int
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a notification hub
func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		subs:   make(map[int]chan models.Event),
	}
}

// Subscribe registers an in-process consumer. The returned cancel func
// removes the subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan models.Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Events are dropped for
// subscribers whose buffers are full.
func (h *Hub) Publish(event models.Event) {
	h.mu.Lock()
	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			logrus.Debugf("Dropping %s event for slow subscriber %d", event.Type, id)
		}
	}
	h.mu.Unlock()

	if h.config.WebhookURL != "" {
		go h.sendToWebhook(event)
	}

	if len(h.config.NotificationEmails) > 0 && event.Type == models.EventCampaignEscalation {
		if campaign, ok := event.Data.(*models.Campaign); ok && campaign.ThreatLevel == models.ThreatCritical {
			go func() {
				if err := h.sendEscalationEmail(campaign); err != nil {
					logrus.Errorf("Failed to send escalation email: %v", err)
				} else {
					logrus.Infof("Sent escalation email for campaign %s", campaign.ID)
				}
			}()
		}
	}
}

func (h *Hub) sendToWebhook(event models.Event) {
	resp, err := h.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(h.config.WebhookURL)

	if err != nil {
		logrus.Errorf("Failed to send webhook notification: %v", err)
		return
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		logrus.Errorf("Webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
}

func (h *Hub) sendEscalationEmail(campaign *models.Campaign) error {
	subject := fmt.Sprintf("Critical campaign alert: %s", campaign.Name)

	var body strings.Builder
	fmt.Fprintf(&body, "Campaign %q has been escalated to critical.\n\n", campaign.Name)
	fmt.Fprintf(&body, "Status: %s\n", campaign.Status)
	fmt.Fprintf(&body, "Posts: %d\n", campaign.TotalPosts)
	fmt.Fprintf(&body, "Velocity: %.1f posts/hour\n", campaign.Velocity)
	fmt.Fprintf(&body, "Average sentiment: %.2f\n", campaign.AverageSentiment)
	if len(campaign.Hashtags) > 0 {
		fmt.Fprintf(&body, "Hashtags: %s\n", strings.Join(campaign.Hashtags, ", "))
	}
	fmt.Fprintf(&body, "First detected: %s\n", campaign.FirstDetectedAt.Format("2006-01-02 15:04:05 UTC"))

	m := gomail.NewMessage()
	m.SetHeader("From", h.config.SMTPUsername)
	m.SetHeader("To", h.config.NotificationEmails...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.String())

	d := gomail.NewDialer(h.config.SMTPHost, h.config.SMTPPort, h.config.SMTPUsername, h.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

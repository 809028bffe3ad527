package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/talent-outreach/internal/model"
)

const (
	DefaultChannel       = "talent-outreach:events"
	EventFollowUpCreated  = "follow_up_created"
)

// Event is the message published for every created follow-up.
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	CandidateID    string    `json:"candidate_id"`
	TaskID         string    `json:"task_id"`
	TaskType       string    `json:"task_type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// PublishFollowUp announces a created follow-up task. Without a client it does nothing.
func (p *Publisher) PublishFollowUp(ctx context.Context, task model.OutreachTask) error {
	if p == nil || p.client == nil {
		return nil
	}

	payload, err := json.Marshal(Event{
		Type:           EventFollowUpCreated,
		OrganizationID: task.OrganizationID,
		CampaignID:     task.CampaignID,
		CandidateID:    task.CandidateID,
		TaskID:         task.ID,
		TaskType:       task.TaskType,
		Status:         task.Status,
		CreatedAt:      task.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

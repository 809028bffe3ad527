package coordination

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/talent-outreach/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaseIsExclusivePerOrganization(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	leaser := NewLeaser(client, time.Minute)

	release, ok, err := leaser.TryAcquire(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = leaser.TryAcquire(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, ok, "second run must not take a held lease")

	other, ok, err := leaser.TryAcquire(ctx, "org-2")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(leaseKeyPrefix+"org-1"))

	_, ok, err = leaser.TryAcquire(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	leaser := NewLeaser(client, time.Minute)

	release, ok, err := leaser.TryAcquire(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = leaser.TryAcquire(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, release(ctx), ErrLeaseNotHeld)
}

func TestLeaseWithoutRedis(t *testing.T) {
	var leaser *Leaser

	release, ok, err := leaser.TryAcquire(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release(context.Background()))
}

func TestPublishFollowUp(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	err = NewPublisher(client, "").PublishFollowUp(ctx, model.OutreachTask{
		ID:             "t-2",
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		CandidateID:    "c1",
		TaskType:       model.TaskTypeFollowUp1,
		Status:         model.TaskStatusPending,
		CreatedAt:      created,
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, EventFollowUpCreated, event.Type)
	assert.Equal(t, "t-2", event.TaskID)
	assert.Equal(t, model.TaskTypeFollowUp1, event.TaskType)
	assert.True(t, event.CreatedAt.Equal(created))
}

func TestPublishWithoutRedis(t *testing.T) {
	assert.NoError(t, NewPublisher(nil, "").PublishFollowUp(context.Background(), model.OutreachTask{}))
}

func TestConnect(t *testing.T) {
	mr, _ := newRedis(t)

	client, err := Connect(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = Connect(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()

	_, err = Connect(context.Background(), Config{URL: "://bad"})
	assert.Error(t, err)
}

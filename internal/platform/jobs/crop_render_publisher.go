// Package jobs publishes background work to Pub/Sub and decodes push
// deliveries.
package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/configurator/internal/domain"
)

// CropRenderPublisher enqueues crop render jobs on a topic.
type CropRenderPublisher struct {
	topic *pubsub.Topic
}

func NewCropRenderPublisher(topic *pubsub.Topic) (*CropRenderPublisher, error) {
	if topic == nil {
		return nil, errors.New("crop render publisher: topic is required")
	}
	return &CropRenderPublisher{topic: topic}, nil
}

// PublishCropRender blocks until the server acknowledges the message and
// returns its id. Messages for one design share an ordering key when the
// topic has ordering enabled.
func (p *CropRenderPublisher) PublishCropRender(ctx context.Context, job domain.CropRenderJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal crop render job: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"jobId":    job.JobID,
			"designId": job.DesignID,
			"target":   strconv.Itoa(job.TargetW) + "x" + strconv.Itoa(job.TargetH),
		},
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = job.DesignID
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish crop render job %s: %w", job.JobID, err)
	}
	return id, nil
}

// PushEnvelope is the body Pub/Sub push subscriptions POST to an endpoint.
type PushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodeCropRenderPush extracts the job carried by a push envelope.
func DecodeCropRenderPush(env PushEnvelope) (domain.CropRenderJob, error) {
	raw := strings.TrimSpace(env.Message.Data)
	if raw == "" {
		return domain.CropRenderJob{}, errors.New("push message has no data")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return domain.CropRenderJob{}, fmt.Errorf("push message data is not base64: %w", err)
	}
	var job domain.CropRenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.CropRenderJob{}, fmt.Errorf("push message data is not a crop render job: %w", err)
	}
	return job, nil
}

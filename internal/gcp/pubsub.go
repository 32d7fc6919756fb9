package gcp

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/pubsub/v1"

	"github.com/budgetml/budgetml/internal/constants"
)

type defaultPubSubClient struct {
	service *pubsub.Service
}

// CreateTopic creates the notification topic and returns its fully
// qualified name. The topic must exist before the watchdog function
// and the scheduler job reference it.
func (c *defaultPubSubClient) CreateTopic(ctx context.Context, project, topic string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.PubSubOperationTimeout)
	defer cancel()

	name := topicName(project, topic)
	_, err := c.service.Projects.Topics.Create(name, &pubsub.Topic{}).Context(ctx).Do()
	if err != nil && !isAlreadyExists(err) {
		return "", wrapError("create pubsub topic", err)
	}

	slog.Debug("topic ready", "topic", name)
	return name, nil
}

// DeleteTopic removes the topic; not-found is tolerated.
func (c *defaultPubSubClient) DeleteTopic(ctx context.Context, project, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.PubSubOperationTimeout)
	defer cancel()

	_, err := c.service.Projects.Topics.Delete(topicName(project, topic)).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return wrapError("delete pubsub topic", err)
}

func topicName(project, topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", project, topic)
}

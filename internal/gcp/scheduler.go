package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"google.golang.org/api/cloudscheduler/v1"

	"github.com/budgetml/budgetml/internal/constants"
)

type defaultSchedulerClient struct {
	service *cloudscheduler.Service
}

// CreateJob registers a cron job that publishes an empty heartbeat
// message to the topic. The job is named after the topic so every
// resource stays discoverable from the instance name.
func (c *defaultSchedulerClient) CreateJob(ctx context.Context, project, region, topic, schedule string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.SchedulerOperationTimeout)
	defer cancel()

	parent := fmt.Sprintf("projects/%s/locations/%s", project, region)
	job := &cloudscheduler.Job{
		Name:     fmt.Sprintf("%s/jobs/%s", parent, topic),
		Schedule: schedule,
		PubsubTarget: &cloudscheduler.PubsubTarget{
			TopicName: topicName(project, topic),
			Data:      base64.StdEncoding.EncodeToString([]byte("{}")),
		},
	}

	slog.Debug("creating scheduler job", "job", job.Name, "schedule", schedule)

	_, err := c.service.Projects.Locations.Jobs.Create(parent, job).Context(ctx).Do()
	if isAlreadyExists(err) {
		return nil
	}
	return wrapError("create scheduler job", err)
}

// DeleteJob removes the heartbeat job; not-found is tolerated.
func (c *defaultSchedulerClient) DeleteJob(ctx context.Context, project, region, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.SchedulerOperationTimeout)
	defer cancel()

	name := fmt.Sprintf("projects/%s/locations/%s/jobs/%s", project, region, topic)
	_, err := c.service.Projects.Locations.Jobs.Delete(name).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return wrapError("delete scheduler job", err)
}

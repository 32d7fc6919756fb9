package provision

import (
	"context"
	"errors"
	"log/slog"
)

// TeardownOptions selects the deployment to dismantle. When
// InstanceName is empty it is derived from the launcher's unique ID.
type TeardownOptions struct {
	InstanceName string
	StaticIPName string
	KeepStaticIP bool
}

// Teardown deletes the resources of a deployment with one symmetric
// delete per resource kind, in reverse creation order. It is not a
// transaction: each delete is attempted even when an earlier one
// fails, and the joined error reports everything that went wrong.
// Not-found resources are skipped silently, so a partial launch can
// be cleaned up with the same call.
func (l *Launcher) Teardown(ctx context.Context, opts TeardownOptions) error {
	instance := opts.InstanceName
	if instance == "" {
		instance = InstanceName(l.uniqueID)
	}
	ipName := opts.StaticIPName
	if ipName == "" {
		ipName = StaticIPName(instance)
	}
	topic := TopicName(instance)
	function := FunctionName(instance)

	slog.Info("tearing down deployment", "instance", instance)

	var errs []error

	if err := l.clients.Instances.DeleteInstance(ctx, l.project, l.zone, instance); err != nil {
		errs = append(errs, err)
	}
	if err := l.clients.Scheduler.DeleteJob(ctx, l.project, l.region, topic); err != nil {
		errs = append(errs, err)
	}
	if err := l.clients.Functions.DeleteWatchdogFunction(ctx, l.project, l.region, function); err != nil {
		errs = append(errs, err)
	}
	if err := l.clients.PubSub.DeleteTopic(ctx, l.project, topic); err != nil {
		errs = append(errs, err)
	}
	if !opts.KeepStaticIP {
		if err := l.clients.Addresses.ReleaseStaticIP(ctx, l.project, l.region, ipName); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

package provision

import (
	"fmt"
	"strings"
)

// Resource names are all derived from one seed value (the unique ID)
// so that every resource of a deployment is discoverable without a
// lookup table. Bucket names allow underscores; instance names do not,
// so underscores in the unique ID become hyphens there.

// BucketName derives the predictor bucket name.
func BucketName(uniqueID string) string {
	return "budget_bucket_" + uniqueID
}

// InstanceName derives the serving instance name.
func InstanceName(uniqueID string) string {
	return "budget-instance-" + strings.ReplaceAll(uniqueID, "_", "-")
}

// StaticIPName derives the address reservation name.
func StaticIPName(instanceName string) string {
	return "ip-" + instanceName
}

// TopicName derives the notification topic name.
func TopicName(instanceName string) string {
	return "topic-" + instanceName
}

// FunctionName derives the watchdog function name.
func FunctionName(instanceName string) string {
	return "function-" + instanceName
}

// PredictorObjectPath is the bucket path the predictor artifact is
// uploaded to, keyed by unique ID and entry-point name.
func PredictorObjectPath(uniqueID, entrypoint string) string {
	return fmt.Sprintf("predictors/%s/%s.py", uniqueID, entrypoint)
}

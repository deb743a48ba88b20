package kdlog

import (
	"context"
	"fmt"

	gclogging "cloud.google.com/go/logging"
)

// CloudSink is the optional remote RemoteSink backed by GCP Cloud Logging.
// Centralized orchestrator logs are an opt-in convenience for fleets
// running kd across many checkouts; unconfigured deployments never touch
// this type.
type CloudSink struct {
	client *gclogging.Client
	logger *gclogging.Logger
}

// NewCloudSink dials Cloud Logging for projectID and returns a sink
// publishing to logName.
func NewCloudSink(ctx context.Context, projectID, logName string) (*CloudSink, error) {
	client, err := gclogging.NewClient(ctx, fmt.Sprintf("projects/%s", projectID))
	if err != nil {
		return nil, fmt.Errorf("kdlog: dial cloud logging: %w", err)
	}
	return &CloudSink{client: client, logger: client.Logger(logName)}, nil
}

func severityToGCP(s Severity) gclogging.Severity {
	switch s {
	case SeverityWarning:
		return gclogging.Warning
	case SeverityError:
		return gclogging.Error
	default:
		return gclogging.Info
	}
}

// Log implements RemoteSink.
func (c *CloudSink) Log(entry Entry) {
	payload := map[string]any{
		"message":   entry.Message,
		"iteration": entry.Iteration,
		"fields":    entry.Fields,
	}
	c.logger.Log(gclogging.Entry{
		Timestamp: entry.Timestamp,
		Severity:  severityToGCP(entry.Severity),
		Payload:   payload,
	})
}

// Close implements RemoteSink.
func (c *CloudSink) Close() error {
	if err := c.logger.Flush(); err != nil {
		return err
	}
	return c.client.Close()
}

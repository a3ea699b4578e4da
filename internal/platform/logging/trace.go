package logging

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
)

const traceparentHeader = "traceparent"

// W3C Trace Context: {version}-{trace-id}-{parent-id}-{trace-flags}
var traceHeaderRe = regexp.MustCompile(`^([0-9a-fA-F]{2})-([0-9a-fA-F]{32})-([0-9a-fA-F]{16})-([0-9a-fA-F]{2})$`)

var projectID atomic.Value

// SetProjectID sets the Google Cloud project used to build trace resource names.
// An empty project disables Cloud Trace correlation.
func SetProjectID(id string) {
	projectID.Store(id)
}

func resolveProjectID() string {
	id, _ := projectID.Load().(string)
	return id
}

func loggerWithTrace(base *zap.Logger, header, project, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := traceFields(header, project)
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func traceFields(header, project string) []zap.Field {
	if project == "" {
		return nil
	}
	m := traceHeaderRe.FindStringSubmatch(header)
	if len(m) != 5 {
		return nil
	}
	return []zap.Field{
		zap.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", project, m[2])),
		zap.String("logging.googleapis.com/spanId", m[3]),
		zap.Bool("logging.googleapis.com/trace_sampled", m[4] == "01"),
	}
}

func traceResource(header, project string) string {
	if project == "" {
		return ""
	}
	m := traceHeaderRe.FindStringSubmatch(header)
	if len(m) != 5 {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", project, m[2])
}

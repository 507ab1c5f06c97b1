package observability

// Queue backlog severity levels surfaced by the jobs health endpoint.
const (
	SeverityOK       = "ok"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	queueWarningDepth  = 50
	queueCriticalDepth = 200
)

// QueueBacklogSeverity maps a pending-task count onto an alert level.
// Thresholds match the Prometheus alerting rules shipped with the
// deployment manifests.
func QueueBacklogSeverity(depth int) string {
	switch {
	case depth >= queueCriticalDepth:
		return SeverityCritical
	case depth >= queueWarningDepth:
		return SeverityWarning
	default:
		return SeverityOK
	}
}

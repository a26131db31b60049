package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

// LogSlowReport warns when building a report took longer than REPORT_SLOW_MS.
func LogSlowReport(ctx context.Context, logger *logrus.Logger, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if logger == nil || d.Milliseconds() < reportSlowMs() {
		return
	}
	logger.WithFields(logrus.Fields{
		"field":          "slow_report",
		"name":           name,
		"ms":             d.Milliseconds(),
		"correlation_id": utils.CorrelationIdOrEmpty(ctx),
		"extra":          extra,
	}).Warn("slow report")
}

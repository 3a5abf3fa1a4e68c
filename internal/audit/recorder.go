package audit

import (
	"context"
	"log/slog"
	"strings"

	"github.com/khanghh/kguard/internal/metrics"
	"github.com/khanghh/kguard/model"
	"github.com/spf13/cast"
)

// Recorder appends events to the audit trail. Recording never fails the
// caller: write errors are logged and counted.
type Recorder struct {
	repo AuditEventRepository
}

func normalizeMetadata(ctx context.Context, in map[string]any) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		if v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			s = slog.AnyValue(v).String()
		}
		out[k] = s
	}
	if info, ok := clientInfoFrom(ctx); ok {
		if info.IP != "" {
			out["ip"] = info.IP
		}
		if info.UserAgent != "" {
			out["user_agent"] = info.UserAgent
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (r *Recorder) Record(ctx context.Context, ev Event) {
	event := &model.AuditEvent{
		Username:  strings.ToLower(strings.TrimSpace(ev.Username)),
		EventType: string(ev.Type),
		Success:   ev.Success,
		Metadata:  normalizeMetadata(ctx, ev.Metadata),
	}
	if ev.AccountID != 0 {
		accountID := ev.AccountID
		event.AccountID = &accountID
	}
	// the trail must be written even when the request was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := r.repo.RecordEvent(ctx, event); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		slog.Error("Failed to write audit event",
			"event", ev.Type,
			"username", event.Username,
			"success", ev.Success,
			"error", err,
		)
	}
}

func NewRecorder(repo AuditEventRepository) *Recorder {
	return &Recorder{repo: repo}
}

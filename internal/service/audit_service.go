package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go-banking-client/internal/event"
	"go-banking-client/internal/model"
	"go-banking-client/pkg/apierror"
)

// auditedEvents maps the bus events worth keeping to their audit status.
// Activity pings and countdown ticks are too chatty to record.
var auditedEvents = map[event.Type]string{
	event.TypeLoginSucceeded:    "success",
	event.TypeLoginFailed:       "failure",
	event.TypeLoggedOut:         "success",
	event.TypeIdentityRestored:  "success",
	event.TypeRecordDiscarded:   "failure",
	event.TypeSessionStarted:    "success",
	event.TypeSessionReset:      "success",
	event.TypeSessionWarning:    "warning",
	event.TypeSessionExpired:    "expired",
	event.TypeSessionEnded:      "success",
	event.TypeTransferCompleted: "success",
	event.TypeTransferFailed:    "failure",
}

var auditStatuses = map[string]bool{"success": true, "failure": true, "warning": true, "expired": true}

// AuditService appends security-relevant events to a JSON-lines file and
// answers filtered queries over it.
type AuditService struct {
	filePath string
	mu       sync.Mutex
}

func NewAuditService(filePath string) (*AuditService, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare audit directory: %w", err)
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("initialize audit file: %w", err)
	}
	_ = f.Close()

	return &AuditService{filePath: filePath}, nil
}

// Run records bus events until ctx is done or the bus closes the channel.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			entry, audited := entryFromEvent(e)
			if !audited {
				continue
			}
			if err := s.Record(entry); err != nil {
				slog.Warn("audit write failed", "type", e.Type, "error", err)
			}
		}
	}
}

func (s *AuditService) Record(entry model.AuditEntry) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

func (s *AuditService) Query(query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'from' datetime format", query.From)
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'to' datetime format", query.To)
	}

	action := strings.ToLower(strings.TrimSpace(query.Action))
	status := strings.ToLower(strings.TrimSpace(query.Status))
	identityID := strings.TrimSpace(query.IdentityID)
	reason := strings.ToLower(strings.TrimSpace(query.Reason))

	if status != "" && !auditStatuses[status] {
		return nil, model.Meta{}, apierror.BadRequest("status must be one of success, failure, warning, expired", query.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.filePath)
	if err != nil {
		return nil, model.Meta{}, err
	}
	defer f.Close()

	type timedEntry struct {
		at    time.Time
		entry model.AuditEntry
	}

	items := make([]timedEntry, 0, 128)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry model.AuditEntry
		if json.Unmarshal([]byte(line), &entry) != nil {
			continue
		}

		if action != "" && !strings.HasPrefix(strings.ToLower(entry.Action), action) {
			continue
		}
		if status != "" && strings.ToLower(entry.Status) != status {
			continue
		}
		if identityID != "" && entry.Actor.UserID != identityID {
			continue
		}
		if reason != "" && strings.ToLower(entry.Reason) != reason {
			continue
		}

		at, timeErr := parseAuditTime(entry.OccurredAt)
		if timeErr != nil {
			continue
		}
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && at.After(to) {
			continue
		}

		items = append(items, timedEntry{at: at, entry: entry})
	}
	if err := scanner.Err(); err != nil {
		return nil, model.Meta{}, err
	}

	sort.SliceStable(items, func(i int, j int) bool {
		return items[i].at.After(items[j].at)
	})

	total := len(items)
	start := min((query.Page-1)*query.Limit, total)
	end := min(start+query.Limit, total)

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}

	page := make([]model.AuditEntry, 0, end-start)
	for _, item := range items[start:end] {
		page = append(page, item.entry)
	}

	meta := model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages, HasMore: end < total}
	return page, meta, nil
}

func entryFromEvent(e event.Event) (model.AuditEntry, bool) {
	status, audited := auditedEvents[e.Type]
	if !audited {
		return model.AuditEntry{}, false
	}

	actor := model.AuditActor{UserID: e.ActorID}
	reason := ""
	if payload, ok := e.Payload.(map[string]any); ok {
		actor.Email, _ = payload["email"].(string)
		reason, _ = payload["reason"].(string)
	}

	return model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor:      actor,
		Status:     status,
		Reason:     reason,
		Detail:     e.Payload,
	}, true
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return parseAuditTime(trimmed)
}

func parseAuditTime(raw string) (time.Time, error) {
	value, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}

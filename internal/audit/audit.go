// Package audit implements the append-only moderator action trail. Entries
// are partitioned into one JSONL segment per (tenant, calendar month); no
// code path rewrites prior entries.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Action kinds written by the core.
const (
	ActionReportValidated   = "report_validated"
	ActionReportRejected    = "report_rejected"
	ActionReportExpired     = "report_expired"
	ActionManualFinalized   = "report_manual_finalized"
	ActionAutoActionTaken   = "auto_action_taken"
	ActionRelayForceExpired = "relay_force_expired"
	ActionReviewerGranted   = "reviewer_granted"
	ActionReviewerRevoked   = "reviewer_revoked"
)

// forbiddenDetailKeys are detail fields that would link an entry back to the
// report submitter. Rejecting them here is a hard invariant of the whole
// system, not a convention left to call sites.
var forbiddenDetailKeys = map[string]bool{
	"submitter":      true,
	"submitter_id":   true,
	"submitter_name": true,
	"reporter":       true,
	"reporter_id":    true,
}

var ErrDetailLeak = fmt.Errorf("audit details must not carry submitter-identifying fields")

// Entry is a single moderator-visible audit record.
type Entry struct {
	Timestamp            time.Time         `json:"timestamp"`
	TenantID             string            `json:"tenant_id"`
	Action               string            `json:"action"`
	ModeratorID          string            `json:"moderator_id"`
	ModeratorDisplayName string            `json:"moderator_display_name"`
	ReportToken          string            `json:"report_token,omitempty"`
	Details              map[string]string `json:"details,omitempty"`
}

// LookupEntry records a reputation lookup. Lookups get their own stream so
// abuse of the lookup feature itself can be analyzed later.
type LookupEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	TenantID         string    `json:"tenant_id"`
	TargetIdentifier string    `json:"target_identifier"`
	ModeratorID      string    `json:"moderator_id"`
	Found            bool      `json:"found"`
}

// Trail appends entries to per-(tenant, month) segment files under dir.
type Trail struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

func NewTrail(dir string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}
	return &Trail{dir: dir, now: time.Now}, nil
}

// Append validates and writes a moderator action entry.
func (t *Trail) Append(tenantID, action, moderatorID, moderatorName string, details map[string]string, reportToken string) error {
	for key := range details {
		if forbiddenDetailKeys[strings.ToLower(key)] {
			return ErrDetailLeak
		}
	}
	entry := Entry{
		Timestamp:            t.now().UTC(),
		TenantID:             tenantID,
		Action:               action,
		ModeratorID:          moderatorID,
		ModeratorDisplayName: moderatorName,
		ReportToken:          reportToken,
		Details:              details,
	}
	return t.appendLine(t.segmentPath("actions", tenantID, entry.Timestamp), entry)
}

// AppendLookup writes a reputation-lookup entry to the lookup stream.
func (t *Trail) AppendLookup(tenantID, targetIdentifier, moderatorID string, found bool) error {
	entry := LookupEntry{
		Timestamp:        t.now().UTC(),
		TenantID:         tenantID,
		TargetIdentifier: targetIdentifier,
		ModeratorID:      moderatorID,
		Found:            found,
	}
	return t.appendLine(t.segmentPath("lookups", tenantID, entry.Timestamp), entry)
}

// History returns a tenant's action entries from the last sinceDays days,
// newest first, optionally filtered by action kind.
func (t *Trail) History(tenantID string, sinceDays int, actionFilter string) ([]Entry, error) {
	if sinceDays < 1 {
		sinceDays = 1
	}
	cutoff := t.now().UTC().AddDate(0, 0, -sinceDays)

	var entries []Entry
	for _, path := range t.segmentsSince("actions", tenantID, cutoff) {
		segment, err := readSegment(path)
		if err != nil {
			return nil, err
		}
		for _, e := range segment {
			if e.Timestamp.Before(cutoff) {
				continue
			}
			if actionFilter != "" && e.Action != actionFilter {
				continue
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (t *Trail) segmentPath(stream, tenantID string, ts time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.jsonl", stream, tenantID, ts.Format("2006-01"))
	return filepath.Join(t.dir, name)
}

// segmentsSince lists the segment files covering [cutoff, now], oldest first.
func (t *Trail) segmentsSince(stream, tenantID string, cutoff time.Time) []string {
	var paths []string
	month := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := t.now().UTC()
	for !month.After(end) {
		path := t.segmentPath(stream, tenantID, month)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
		month = month.AddDate(0, 1, 0)
	}
	return paths
}

func (t *Trail) appendLine(path string, v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit segment: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func readSegment(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit segment: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 5*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

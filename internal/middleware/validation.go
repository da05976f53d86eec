package middleware

import (
	"errors"
	"strconv"
	"strings"
)

// ValidateTenantID validates a tenant ID parameter.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant_id is required")
	}
	if len(id) > 64 {
		return errors.New("tenant_id exceeds maximum length")
	}
	return nil
}

// ParseInboxIDs parses a comma-separated inbox id list into a set. An empty
// value is valid and means no inbox filter (broad subscription).
func ParseInboxIDs(raw string) (map[int]bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	ids := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, errors.New("inbox_ids must be a comma-separated list of positive integers")
		}
		ids[id] = true
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// ParseConversationID parses an optional conversation id parameter.
// Returns 0 when absent.
func ParseConversationID(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("conversation_id must be a positive integer")
	}
	return id, nil
}

// ParseAfterSequence parses the polling cursor. Returns 0 when absent.
func ParseAfterSequence(raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("after_sequence must be a non-negative integer")
	}
	return seq, nil
}

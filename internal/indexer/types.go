package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExportMessage is one message in a member-message export.
type ExportMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// exportPage is the paginated shape served by the messages API: {"total": N, "items": [...]}.
type exportPage struct {
	Total int             `json:"total"`
	Items []ExportMessage `json:"items"`
}

// Skip reasons reported in Stats.SkippedReasons.
const (
	SkipMissingID     = "missing_id"
	SkipMissingAuthor = "missing_user_id"
	SkipEmptyMessage  = "empty_message"
	SkipDuplicateID   = "duplicate_id"
)

// parseExport accepts either a bare JSON array of messages or a paginated page.
func parseExport(data []byte) ([]ExportMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	if trimmed[0] == '[' {
		var msgs []ExportMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode message array: %w", err)
		}
		return msgs, nil
	}

	var page exportPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("failed to decode message page: %w", err)
	}
	if page.Items == nil {
		return nil, fmt.Errorf("export object has no items")
	}
	return page.Items, nil
}

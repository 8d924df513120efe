package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruralpay/ledger/internal/store"
)

const cursorSeparator = "|"

// EncodeCursor renders a ledger position as "{RFC3339Nano}|{entryID}".
func EncodeCursor(k store.Keyset) string {
	return k.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + k.ID
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty cursor
// decodes to nil, meaning the newest entry.
func DecodeCursor(cursor string) (*store.Keyset, error) {
	if cursor == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(cursor, cursorSeparator)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: expected timestamp|id", ErrInvalidCursor)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: entry id: %v", ErrInvalidCursor, err)
	}
	return &store.Keyset{CreatedAt: createdAt, ID: id}, nil
}

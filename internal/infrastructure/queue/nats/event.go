package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type reindexEvent struct {
	Partition   string    `json:"partition"`
	ReindexedAt time.Time `json:"reindexed_at"`
}

func encodeEvent(partition string, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(reindexEvent{Partition: partition, ReindexedAt: at})
	if err != nil {
		return nil, fmt.Errorf("marshal reindex event: %w", err)
	}
	return raw, nil
}

// decodeEvent accepts the JSON envelope or a bare partition name.
func decodeEvent(data []byte) (reindexEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return reindexEvent{}, errors.New("empty reindex event")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return reindexEvent{Partition: trimmed}, nil
	}
	var event reindexEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return reindexEvent{}, fmt.Errorf("unmarshal reindex event: %w", err)
	}
	if strings.TrimSpace(event.Partition) == "" {
		return reindexEvent{}, errors.New("reindex event without partition")
	}
	return event, nil
}

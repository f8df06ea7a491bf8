package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

func DecodeInstanceCursor(cursorStr string) (*domain.InstanceCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdAt, instanceID, ok := strings.Cut(string(decoded), "|")
	if !ok || instanceID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(createdAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &domain.InstanceCursor{
		CreatedAt:  time.Unix(0, nanos).UTC(),
		InstanceID: instanceID,
	}, nil
}

func EncodeInstanceCursor(cursor *domain.InstanceCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.InstanceID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}

package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type IDType string

const (
	IDTypeOperation IDType = "op"
	IDTypeDrop      IDType = "drop"
	IDTypeWatch     IDType = "watch"
)

var validIDTypes = map[IDType]bool{
	IDTypeOperation: true,
	IDTypeDrop:      true,
	IDTypeWatch:     true,
}

var idRegex = regexp.MustCompile(`^(op|drop|watch)_([0-9]{10})_([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// GenerateID returns "<type>_<unix seconds>_<uuid>".
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	return fmt.Sprintf("%s_%010d_%s", idType, time.Now().Unix(), uuid.NewString()), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

func ParseIDType(id string) (IDType, error) {
	match := idRegex.FindStringSubmatch(id)
	if match == nil {
		return "", fmt.Errorf("invalid ID format: %s", id)
	}
	return IDType(match[1]), nil
}

func ParseIDTimestamp(id string) (time.Time, error) {
	match := idRegex.FindStringSubmatch(id)
	if match == nil {
		return time.Time{}, fmt.Errorf("invalid ID format: %s", id)
	}
	ts, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from ID %s: %w", id, err)
	}
	return time.Unix(ts, 0), nil
}

package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/smallbiznis/bazaar/pkg/db/pagination"
)

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseID(value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return parsed, nil
}

// pageOptions turns a page request into keyset options. The extra row tells
// BuildCursorPageInfo whether another page exists.
func pageOptions(page pagination.Pagination) ([]option.QueryOption, int, error) {
	afterID, size, err := page.Normalize()
	if err != nil {
		return nil, 0, err
	}
	return []option.QueryOption{
		option.WithAfterID(afterID),
		option.WithSortBy("id", false),
		option.WithLimit(size + 1),
	}, size, nil
}

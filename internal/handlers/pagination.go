package handlers

import (
	"errors"
	"strconv"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errInvalidPagination = errors.New("invalid pagination params")

// pageWindow is the skip/limit pair handed to an aggregation. A zero Limit
// means the whole result set.
type pageWindow struct {
	Skip  int64
	Limit int64
}

// parsePageWindow reads ?page and ?limit. Paging only applies when at least
// one of them is present; limit is capped at maxPageSize.
func parsePageWindow(pageStr, limitStr string) (pageWindow, error) {
	pageStr, limitStr = strings.TrimSpace(pageStr), strings.TrimSpace(limitStr)
	if pageStr == "" && limitStr == "" {
		return pageWindow{}, nil
	}

	page, err := positiveInt(pageStr, 1)
	if err != nil {
		return pageWindow{}, err
	}
	size, err := positiveInt(limitStr, defaultPageSize)
	if err != nil {
		return pageWindow{}, err
	}
	size = min(size, maxPageSize)

	return pageWindow{Skip: (page - 1) * size, Limit: size}, nil
}

func positiveInt(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, errInvalidPagination
	}
	return n, nil
}

package util

import (
	"math"
	"strconv"
)

// ParsePage 解析分页参数，非法值回退到默认值，limit 不超过 maxLimit
func ParsePage(pageStr, limitStr string, defaultLimit, maxLimit int) (int, int) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	// 保证 (page-1)*limit 不溢出
	if maxPage := math.MaxInt32 / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

// ParseBool 解析失败时返回 false
func ParseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

package model

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// QueryOptions 列表查询参数；零值即默认值（不分页，按 id 升序）
type QueryOptions struct {
	Page    int        `json:"page" form:"page" validate:"gte=0"`
	PerPage int        `json:"per_page" form:"per_page" validate:"gte=0,lte=1000"`
	OrderBy string     `json:"order_by" form:"order_by" validate:"omitempty,oneof=id date_recorded leader_id follower_id"`
	Order   string     `json:"order" form:"order" validate:"omitempty,oneof=ASC DESC asc desc"`
	Date    *DateQuery `json:"date,omitempty" validate:"omitempty"`
}

// DateQuery 对 date_recorded 的范围过滤。After/Before 接受绝对时间
// （RFC3339、2006-01-02 等）或相对时间（"1 day ago"、"yesterday"）。
type DateQuery struct {
	After     string `json:"after" form:"after"`
	Before    string `json:"before" form:"before"`
	Inclusive bool   `json:"inclusive" form:"inclusive"`
}

// IsZero reports whether the filter has no bounds.
func (d *DateQuery) IsZero() bool {
	return d == nil || (strings.TrimSpace(d.After) == "" && strings.TrimSpace(d.Before) == "")
}

// IsDefault 只有默认参数的列表结果才会进入缓存
func (o QueryOptions) IsDefault() bool {
	return o.Page <= 1 && o.PerPage == 0 &&
		(o.OrderBy == "" || o.OrderBy == "id") &&
		(o.Order == "" || strings.EqualFold(o.Order, "ASC")) &&
		o.Date.IsZero()
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks field constraints.
func (o QueryOptions) Validate() error {
	validateOnce.Do(func() { validate = validator.New() })
	return validate.Struct(o)
}

package repository

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/d60-Lab/followgraph/internal/model"
)

var (
	relativeRe = regexp.MustCompile(`^(\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago$`)
	dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)
)

// applyDateQuery 在 date_recorded 上追加范围条件
func applyDateQuery(tx *gorm.DB, dq *model.DateQuery, ref time.Time) (*gorm.DB, error) {
	if dq.IsZero() {
		return tx, nil
	}
	gt, lt := ">", "<"
	if dq.Inclusive {
		gt, lt = ">=", "<="
	}
	if s := strings.TrimSpace(dq.After); s != "" {
		t, err := parseDateBound(s, ref, false)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("date_recorded "+gt+" ?", t)
	}
	if s := strings.TrimSpace(dq.Before); s != "" {
		// 闭区间时，纯日期的上界取当天结束
		t, err := parseDateBound(s, ref, dq.Inclusive)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("date_recorded "+lt+" ?", t)
	}
	return tx, nil
}

// parseDateBound resolves an absolute or relative date phrase against ref.
// endOfDay widens day-granular values to the last instant of that day.
func parseDateBound(s string, ref time.Time, endOfDay bool) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	day := func(t time.Time) time.Time {
		if endOfDay {
			return now.With(t).EndOfDay()
		}
		return now.With(t).BeginningOfDay()
	}

	switch s {
	case "now":
		return ref, nil
	case "today":
		return day(ref), nil
	case "yesterday":
		return day(ref.AddDate(0, 0, -1)), nil
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrInvalidQuery, "date %q", s)
		}
		switch m[2] {
		case "second":
			return ref.Add(-time.Duration(n) * time.Second), nil
		case "minute":
			return ref.Add(-time.Duration(n) * time.Minute), nil
		case "hour":
			return ref.Add(-time.Duration(n) * time.Hour), nil
		case "day":
			return ref.AddDate(0, 0, -n), nil
		case "week":
			return ref.AddDate(0, 0, -7*n), nil
		case "month":
			return ref.AddDate(0, -n, 0), nil
		default:
			return ref.AddDate(-n, 0, 0), nil
		}
	}

	if t, err := time.Parse(time.RFC3339, strings.ToUpper(s)); err == nil {
		return t, nil
	}
	t, err := now.New(ref).Parse(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidQuery, "date %q", s)
	}
	if dateOnlyRe.MatchString(s) {
		return day(t), nil
	}
	return t, nil
}

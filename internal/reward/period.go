package reward

import (
	"fmt"
	"strings"
	"time"
)

// PeriodType 奖励周期类型
type PeriodType string

const (
	PeriodWeek     PeriodType = "WEEK"
	PeriodMonth    PeriodType = "MONTH"
	PeriodQuarter  PeriodType = "QUARTER"
	PeriodSemester PeriodType = "SEMESTER"
	PeriodYear     PeriodType = "YEAR"
)

// ParsePeriodType 解析周期类型
func ParsePeriodType(s string) (PeriodType, error) {
	switch t := PeriodType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodSemester, PeriodYear:
		return t, nil
	default:
		return "", fmt.Errorf("unknown period type %q", s)
	}
}

// Period 一个 [Start, End) 时间窗口，单位秒
type Period struct {
	Type     PeriodType `json:"type"`
	TimeZone string     `json:"time_zone"`
	Start    int64      `json:"start"`
	End      int64      `json:"end"`
}

// Contains 时间是否落在窗口内
func (p Period) Contains(t time.Time) bool {
	s := t.Unix()
	return s >= p.Start && s < p.End
}

// HasEnded 窗口是否已结束
func (p Period) HasEnded(now time.Time) bool {
	return now.Unix() >= p.End
}

// Key 周期唯一标识
func (p Period) Key() string {
	return fmt.Sprintf("%s:%d", p.Type, p.Start)
}

// ResolvePeriod 计算 anchor 所在的周期，边界为时区内的零点，周从周一开始
func ResolvePeriod(periodType PeriodType, anchor time.Time, timeZone string) (Period, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return Period{}, fmt.Errorf("invalid time zone %q: %w", timeZone, err)
	}

	local := anchor.In(loc)
	year, month, day := local.Date()

	var start, end time.Time
	switch periodType {
	case PeriodWeek:
		offset := (int(local.Weekday()) + 6) % 7
		start = startOfDay(year, month, day-offset, loc)
		end = startOfDay(year, month, day-offset+7, loc)
	case PeriodMonth:
		start = startOfDay(year, month, 1, loc)
		end = startOfDay(year, month+1, 1, loc)
	case PeriodQuarter:
		first := time.Month((int(month)-1)/3*3 + 1)
		start = startOfDay(year, first, 1, loc)
		end = startOfDay(year, first+3, 1, loc)
	case PeriodSemester:
		first := time.Month((int(month)-1)/6*6 + 1)
		start = startOfDay(year, first, 1, loc)
		end = startOfDay(year, first+6, 1, loc)
	case PeriodYear:
		start = startOfDay(year, time.January, 1, loc)
		end = startOfDay(year+1, time.January, 1, loc)
	default:
		return Period{}, fmt.Errorf("unknown period type %q", periodType)
	}

	return Period{
		Type:     periodType,
		TimeZone: timeZone,
		Start:    start.Unix(),
		End:      end.Unix(),
	}, nil
}

// startOfDay 当天第一个有效时刻，零点因夏令时不存在时顺延
func startOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	want := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	for hour := 1; hour <= 3 && !sameDate(t, want); hour++ {
		t = time.Date(year, month, day, hour, 0, 0, 0, loc)
	}
	return t
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

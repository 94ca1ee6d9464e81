package ai

import "time"

// marketSession 描述一个交易时段（UTC）及该市场的固定假日。
type marketSession struct {
	Name      string
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
	Holidays  [][2]int // (月, 日)
}

// 粗粒度的全球主要市场常规交易时段，常规夏令时口径。
var marketSessions = []marketSession{
	{Name: "US", OpenHour: 13, OpenMin: 30, CloseHour: 20, CloseMin: 0, Holidays: [][2]int{{1, 1}, {7, 4}, {12, 25}}},
	{Name: "Europe", OpenHour: 7, OpenMin: 0, CloseHour: 15, CloseMin: 30, Holidays: [][2]int{{1, 1}, {12, 25}}},
	{Name: "Asia", OpenHour: 0, OpenMin: 0, CloseHour: 7, CloseMin: 0, Holidays: [][2]int{{1, 1}, {12, 25}}},
}

func (s marketSession) isHoliday(t time.Time) bool {
	for _, h := range s.Holidays {
		if int(t.Month()) == h[0] && t.Day() == h[1] {
			return true
		}
	}
	return false
}

// OpenMarkets 返回给定时刻处于常规交易时段内的市场名称。
// 周末统一视为休市，固定假日（元旦、圣诞等）按市场单独排除。
func OpenMarkets(now time.Time) []string {
	utc := now.UTC()
	if wd := utc.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}

	minutes := utc.Hour()*60 + utc.Minute()
	var open []string
	for _, s := range marketSessions {
		if s.isHoliday(utc) {
			continue
		}
		if minutes >= s.OpenHour*60+s.OpenMin && minutes < s.CloseHour*60+s.CloseMin {
			open = append(open, s.Name)
		}
	}
	return open
}

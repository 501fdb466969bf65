package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"shiftwatch/internal/shifts"
)

type digestBucket int

const (
	bucketNew digestBucket = iota
	bucketOld
	bucketScheduled
)

const dateLayout = "02.01.2006"

func (b *Bot) formatDigest(bucket digestBucket, r shifts.Result) string {
	var (
		list  []shifts.Shift
		count int
	)
	switch bucket {
	case bucketNew:
		list, count = r.New, r.NewCount
		if count == 0 {
			return "❌ You have no new shifts ❌"
		}
	case bucketOld:
		list, count = r.Old, r.OldCount
		if count == 0 {
			return "❌ You have no old shifts ❌"
		}
	case bucketScheduled:
		list, count = r.Scheduled, r.ScheduledCount
		if count == 0 {
			return "❌ You have no scheduled shifts ❌"
		}
	}

	var sb strings.Builder
	switch bucket {
	case bucketNew:
		fmt.Fprintf(&sb, "✨ New %d Shifts\n\n", count)
	case bucketOld:
		fmt.Fprintf(&sb, "📅 Old %d Shifts\n\n", count)
	case bucketScheduled:
		fmt.Fprintf(&sb, "📌 Scheduled %d Shifts\n\n", count)
	}

	for _, group := range groupByDate(list) {
		sb.WriteString(group.date)
		if day := weekday(group.date); day != "" {
			sb.WriteString(" (" + day + ")")
		}
		if b.isHoliday(group.date) {
			sb.WriteString(" 🎉 Holiday!")
		}
		sb.WriteString("\n")
		for _, s := range group.shifts {
			sb.WriteString("🪓 " + s.TimeFrom + "–" + s.TimeTo + " | " + s.Responsible)
			if !s.Allowed {
				sb.WriteString(" ❌")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

type dateGroup struct {
	date   string
	shifts []shifts.Shift
}

// groupByDate sorts by calendar date (unparseable dates sort last, in
// input order) and groups consecutive equal dates.
func groupByDate(list []shifts.Shift) []dateGroup {
	sorted := append([]shifts.Shift(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, erri := time.Parse(dateLayout, strings.TrimSpace(sorted[i].Date))
		tj, errj := time.Parse(dateLayout, strings.TrimSpace(sorted[j].Date))
		if erri != nil || errj != nil {
			return erri == nil && errj != nil
		}
		return ti.Before(tj)
	})

	var groups []dateGroup
	for _, s := range sorted {
		if n := len(groups); n > 0 && groups[n-1].date == s.Date {
			groups[n-1].shifts = append(groups[n-1].shifts, s)
			continue
		}
		groups = append(groups, dateGroup{date: s.Date, shifts: []shifts.Shift{s}})
	}
	return groups
}

func weekday(date string) string {
	t, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

func (b *Bot) isHoliday(date string) bool {
	for _, h := range b.cfg.Holidays {
		if h == date {
			return true
		}
	}
	return false
}

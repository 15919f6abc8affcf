package vecstore

import (
	"sort"
	"time"
)

type retentionTier int

const (
	tierExpired retentionTier = iota
	tierDaily
	tierWeekly
	tierMonthly
)

// classifyBackup assigns a backup to a generational tier from its age
// in full days. Weekly candidates must have been taken on a Monday and
// monthly candidates on the first of the month, both in UTC, so the
// buckets stay stable as the windows slide.
func classifyBackup(createdAt, now time.Time, retainDays, retainWeekly, retainMonthly int) retentionTier {
	age := int(now.Sub(createdAt).Hours() / 24)
	if age < 0 {
		age = 0
	}

	created := createdAt.UTC()

	switch {
	case age < retainDays:
		return tierDaily
	case age < retainDays+7*retainWeekly && created.Weekday() == time.Monday:
		return tierWeekly
	case age < retainDays+7*retainWeekly+30*retainMonthly && created.Day() == 1:
		return tierMonthly
	default:
		return tierExpired
	}
}

// retainedBackups returns the set of backup IDs to keep: every daily
// backup inside the daily window, plus the most recent retainWeekly
// weekly anchors and retainMonthly monthly anchors.
func retainedBackups(backups []Manifest, now time.Time, retainDays, retainWeekly, retainMonthly int) map[string]struct{} {
	buckets := make(map[retentionTier][]Manifest)
	for _, backup := range backups {
		tier := classifyBackup(backup.CreatedAt, now, retainDays, retainWeekly, retainMonthly)
		if tier == tierExpired {
			continue
		}

		buckets[tier] = append(buckets[tier], backup)
	}

	for tier := range buckets {
		sort.Slice(buckets[tier], func(i, j int) bool {
			return buckets[tier][i].CreatedAt.After(buckets[tier][j].CreatedAt)
		})
	}

	limits := map[retentionTier]int{
		tierDaily:   retainDays,
		tierWeekly:  retainWeekly,
		tierMonthly: retainMonthly,
	}

	retained := make(map[string]struct{})
	for tier, bucket := range buckets {
		limit := limits[tier]
		if len(bucket) > limit {
			bucket = bucket[:limit]
		}

		for _, backup := range bucket {
			retained[backup.ID] = struct{}{}
		}
	}

	return retained
}

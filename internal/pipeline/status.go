package pipeline

import "hnzh/internal/domain/settings"

func statusOf(lastRunAt int64, storiesFetched, titlesTranslated int) settings.SchedulerStatus {
	ts := lastRunAt
	return settings.SchedulerStatus{
		LastRunAt:        &ts,
		StoriesFetched:   storiesFetched,
		TitlesTranslated: titlesTranslated,
		UpdatedAt:        lastRunAt,
	}
}

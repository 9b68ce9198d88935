package config

type WorkerKeyStruct struct {
	PersistAnswersQueue   string
	AnalyticsRefreshQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:   "persist_answers_queue",
	AnalyticsRefreshQueue: "analytics_refresh_queue",
}

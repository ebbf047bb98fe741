package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// gin 上下文键
const (
	ContextUser          = "user"
	ContextDirectoryUser = "directoryUser"
	ContextConfig        = "config"
)

// 事件路由键
const (
	EventAttemptStarted = "attempt.started"
	EventAttemptGraded  = "attempt.graded"
	EventAttemptExpired = "attempt.expired"
	EventAttemptsPurged = "quiz.attempts.purged"
)

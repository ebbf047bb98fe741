package event

import "time"

// AttemptEvent 答题生命周期事件，routing key 即 EventType
type AttemptEvent struct {
	EventType     string    `json:"eventType"`
	QuizID        string    `json:"quizId"`
	AttemptID     string    `json:"attemptId,omitempty"`
	StudentID     string    `json:"studentId,omitempty"`
	AttemptNumber int       `json:"attemptNumber,omitempty"`
	Status        string    `json:"status,omitempty"`
	PointsEarned  int       `json:"pointsEarned,omitempty"`
	TotalPoints   int       `json:"totalPoints,omitempty"`
	Percentage    int       `json:"percentage,omitempty"`
	Passed        bool      `json:"passed,omitempty"`
	Deleted       int64     `json:"deleted,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

package service

import (
	"math"
	"quiz_backend/internal/grading"
	"quiz_backend/internal/repository"
)

// Statistics 某测验全部答题记录的汇总，每次实时计算
type Statistics struct {
	AverageScore  float64 `json:"averageScore"`
	HighestScore  int     `json:"highestScore"`
	LowestScore   int     `json:"lowestScore"`
	TotalAttempts int     `json:"totalAttempts"`
	PassedCount   int     `json:"passedCount"`
	PassRate      int     `json:"passRate"`
}

// Summarize 同一学生的多次答题都计入
func Summarize(rows []repository.ScoreRow) Statistics {
	var stats Statistics
	if len(rows) == 0 {
		return stats
	}

	sum := 0
	stats.HighestScore = rows[0].Percentage
	stats.LowestScore = rows[0].Percentage
	for _, r := range rows {
		sum += r.Percentage
		if r.Percentage > stats.HighestScore {
			stats.HighestScore = r.Percentage
		}
		if r.Percentage < stats.LowestScore {
			stats.LowestScore = r.Percentage
		}
		if r.Passed {
			stats.PassedCount++
		}
	}
	stats.TotalAttempts = len(rows)
	stats.AverageScore = math.Round(float64(sum)/float64(len(rows))*100) / 100
	stats.PassRate = grading.Percentage(stats.PassedCount, stats.TotalAttempts)
	return stats
}

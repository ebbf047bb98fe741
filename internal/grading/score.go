package grading

import "math"

// Percentage 四舍五入（.5 向上），totalPoints 为 0 时返回 0
func Percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(earned)/float64(total)*100 + 0.5))
}

func Passed(percentage, passingScore int) bool {
	return percentage >= passingScore
}

// LetterGrade 固定阈值，与测验及格线无关
func LetterGrade(percentage int) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

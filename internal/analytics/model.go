package analytics

// Summary feeds the summary cards at the top of the dashboard.
type Summary struct {
	TotalStudents  int     `json:"total_students" yaml:"totalStudents"`
	ActiveStudents int     `json:"active_students" yaml:"activeStudents"`
	TotalRevenue   float64 `json:"total_revenue" yaml:"totalRevenue"`
	RevenueGrowth  float64 `json:"revenue_growth" yaml:"revenueGrowth"`
	TotalContent   int     `json:"total_content" yaml:"totalContent"`
	AverageScore   float64 `json:"average_score" yaml:"averageScore"`
	CompletionRate float64 `json:"completion_rate" yaml:"completionRate"`
	EngagementRate float64 `json:"engagement_rate" yaml:"engagementRate"`
	NewSignups     int     `json:"new_signups" yaml:"newSignups"`
}

type Student struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Email        string  `json:"email" yaml:"email"`
	CollegeID    string  `json:"college_id" yaml:"collegeId"`
	Year         int     `json:"year" yaml:"year"`
	Status       string  `json:"status" yaml:"status"`
	Progress     float64 `json:"progress" yaml:"progress"`
	AverageScore float64 `json:"average_score" yaml:"averageScore"`
	LastActive   string  `json:"last_active,omitempty" yaml:"lastActive,omitempty"`
}

type Content struct {
	ID             string  `json:"id" yaml:"id"`
	Title          string  `json:"title" yaml:"title"`
	Subject        string  `json:"subject" yaml:"subject"`
	Difficulty     string  `json:"difficulty" yaml:"difficulty"`
	Type           string  `json:"type" yaml:"type"`
	Views          int     `json:"views" yaml:"views"`
	Completions    int     `json:"completions" yaml:"completions"`
	AverageRating  float64 `json:"average_rating" yaml:"averageRating"`
	AverageMinutes float64 `json:"average_time_minutes" yaml:"averageMinutes"`
}

type Revenue struct {
	Date          string  `json:"date" yaml:"date"`
	Amount        float64 `json:"amount" yaml:"amount"`
	Currency      string  `json:"currency" yaml:"currency"`
	Subscriptions int     `json:"subscriptions" yaml:"subscriptions"`
	Refunds       float64 `json:"refunds" yaml:"refunds"`
	Plan          string  `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// EngagementPoint is one day of the engagement time series.
type EngagementPoint struct {
	Date              string  `json:"date" yaml:"date"`
	ActiveUsers       int     `json:"active_users" yaml:"activeUsers"`
	Sessions          int     `json:"sessions" yaml:"sessions"`
	AvgSessionMinutes float64 `json:"avg_session_minutes" yaml:"avgSessionMinutes"`
	QuizzesTaken      int     `json:"quizzes_taken" yaml:"quizzesTaken"`
}

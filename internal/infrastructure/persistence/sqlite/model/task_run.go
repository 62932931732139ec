package model

type TaskRun struct {
	RunID       string `gorm:"column:run_id;primaryKey"`
	IssueNumber int    `gorm:"column:issue_number;not null;index"`
	Action      string `gorm:"column:action;type:text;not null"`
	Outcome     string `gorm:"column:outcome;type:text;not null"`
	Detail      string `gorm:"column:detail;type:text;not null"`
	StartedAt   string `gorm:"column:started_at;type:text;not null"`
	FinishedAt  string `gorm:"column:finished_at;type:text"`
}

func (TaskRun) TableName() string {
	return "task_runs"
}

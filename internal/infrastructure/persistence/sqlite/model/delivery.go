package model

type Delivery struct {
	DeliveryID  string `gorm:"column:delivery_id;primaryKey"`
	IssueNumber int    `gorm:"column:issue_number;not null;index"`
	EventKind   string `gorm:"column:event_kind;type:text;not null"`
	Label       string `gorm:"column:label;type:text;not null"`
	PayloadSHA  string `gorm:"column:payload_sha;type:text;not null"`
	ReceivedAt  string `gorm:"column:received_at;type:text;not null;index"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

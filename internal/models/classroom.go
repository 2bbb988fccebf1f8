package models

import "time"

// Profile is a platform user. Teachers own classes and receive plagiarism alerts.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	Role      string    `gorm:"size:32" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Class groups students under the teacher recorded in CreatedBy.
type Class struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedBy string    `gorm:"size:36;not null;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Activity is an assignment published to a class.
type Activity struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ClassID   *string   `gorm:"size:36;index" json:"class_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	CreatedBy string    `gorm:"size:36;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

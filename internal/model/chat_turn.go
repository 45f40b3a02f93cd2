package model

import "time"

// ChatTurn is one question/answer exchange. SourceFile is nil for
// general-mode turns; turns are immutable once written.
type ChatTurn struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:64;not null;index:idx_tenant_created" json:"tenant_id"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	SourceFile *string   `gorm:"size:256;index" json:"source_file"`
	CreatedAt  time.Time `gorm:"index:idx_tenant_created" json:"created_at"`
}

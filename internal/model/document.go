package model

import "time"

// Document is the metadata record for one uploaded file. The vectors
// themselves live in the tenant's Qdrant collection; ChunkCount records how
// many points were indexed for the file.
type Document struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string    `gorm:"size:64;not null;uniqueIndex:idx_tenant_filename" json:"tenant_id"`
	Filename   string    `gorm:"size:256;not null;uniqueIndex:idx_tenant_filename" json:"filename"`
	ChunkCount int       `gorm:"not null" json:"chunk_count"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}

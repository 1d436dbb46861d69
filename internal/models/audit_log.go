package models

// AuditLog records admin mutations of the ledger for traceability.
type AuditLog struct {
	Base
	ActorID      string `gorm:"not null;index" json:"actor_id"`
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	Changes      string `json:"changes,omitempty"`
}

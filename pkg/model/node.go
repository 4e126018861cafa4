package model

import "time"

// Node is a registered compute node subject to periodic attestation.
type Node struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Host      string    `gorm:"uniqueIndex;size:128" json:"host"`
	Addr      string    `gorm:"size:255" json:"addr,omitempty"` // host:port reachable by probe adapters
	Desc      string    `gorm:"size:255" json:"desc,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

package store

import "time"

type Media struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"index"`
	Path           string `gorm:"uniqueIndex"`
	Size           int64
	MimeDescriptor string
	Checksum       string
	CreatedAt      time.Time
}

type LogKind string

const (
	KindStatus     LogKind = "status"
	KindError      LogKind = "error"
	KindDisconnect LogKind = "disconnect"
	KindInfo       LogKind = "info"
)

type LogEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Room      string `gorm:"index"`
	PeerID    string
	Kind      LogKind
	Message   string
	CreatedAt time.Time
}

// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Dataset 导入状态。
const (
	DatasetStatusImporting = 0
	DatasetStatusReady     = 1
	DatasetStatusFailed    = 2
)

// Dataset 对应于数据库中的 'datasets' 表。
// 它记录了每份会话导出 CSV 的元数据和导入状态。
type Dataset struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5    string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"fileMd5"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(255);not null" json:"-"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: importing, 1: ready, 2: failed
	UserID     uint       `gorm:"not null" json:"userId"`
	// 导入完成后由管道回填的数据概况。
	EventCount   int64      `gorm:"not null;default:0" json:"eventCount"`
	ThreadCount  int64      `gorm:"not null;default:0" json:"threadCount"`
	FirstEventAt *time.Time `gorm:"default:null" json:"firstEventAt"`
	LastEventAt  *time.Time `gorm:"default:null" json:"lastEventAt"`
	ErrorMessage string     `gorm:"type:varchar(500)" json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ImportedAt   *time.Time `gorm:"default:null" json:"importedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Dataset) TableName() string {
	return "datasets"
}

package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sequence 数据库原生计数器 (分录号、发票号等)
// 对应数据库表: gl_sequences
type Sequence struct {
	Name      string `gorm:"primaryKey;type:varchar(64)"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (Sequence) TableName() string {
	return "gl_sequences"
}

// 单条语句完成 "插入或自增并返回"，行锁由数据库持有到事务结束
// Postgres 与 SQLite (>= 3.35) 都支持 ON CONFLICT ... RETURNING
const nextValueSQL = `INSERT INTO gl_sequences (name, value, updated_at) VALUES (?, 1, ?)
ON CONFLICT (name) DO UPDATE SET value = gl_sequences.value + 1, updated_at = excluded.updated_at
RETURNING value`

// NextValue 在传入的事务中取下一个序号
// 注意：不能用 "读最大值再加一"，并发下会产生重复号码
func NextValue(ctx context.Context, tx *gorm.DB, name string) (int64, error) {
	var value int64
	if err := tx.WithContext(ctx).Raw(nextValueSQL, name, time.Now().UTC()).Scan(&value).Error; err != nil {
		return 0, Classify(fmt.Errorf("next value for %s: %w", name, err))
	}
	if value == 0 {
		return 0, fmt.Errorf("next value for %s: counter returned no row", name)
	}
	return value, nil
}

package repository

import (
	"context"

	"GreenLedger/server/internal/model"

	"gorm.io/gorm"
)

type StagingRepository interface {
	// Insert 按 (connector_id, source_table, content_hash) 去重，重复 payload 返回 created=false
	Insert(ctx context.Context, row *model.StagingRow) (created bool, err error)
	// InsertBatch 同一张表的一批行在一个事务里写入（整表 all-or-nothing）
	InsertBatch(ctx context.Context, rows []*model.StagingRow) (created int, err error)
	// Partition 取某连接器某源表的全部原始行
	Partition(ctx context.Context, orgID, connectorID uint, table string) ([]model.StagingRow, error)
}

type stagingRepository struct {
	db *gorm.DB
}

func NewStagingRepository(db *gorm.DB) StagingRepository {
	return &stagingRepository{db: db}
}

func (r *stagingRepository) Insert(ctx context.Context, row *model.StagingRow) (bool, error) {
	return insertDedup(r.db.WithContext(ctx), row)
}

func (r *stagingRepository) InsertBatch(ctx context.Context, rows []*model.StagingRow) (int, error) {
	created := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			ok, err := insertDedup(tx, row)
			if err != nil {
				return err // 回滚整表
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func insertDedup(tx *gorm.DB, row *model.StagingRow) (bool, error) {
	var count int64
	if err := tx.Model(&model.StagingRow{}).
		Where("connector_id = ? AND source_table = ? AND content_hash = ?", row.ConnectorID, row.SourceTable, row.ContentHash).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := tx.Create(row).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *stagingRepository) Partition(ctx context.Context, orgID, connectorID uint, table string) ([]model.StagingRow, error) {
	var rows []model.StagingRow
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND connector_id = ? AND source_table = ?", orgID, connectorID, table).
		Order("id").
		Find(&rows).Error
	return rows, err
}

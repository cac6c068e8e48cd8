package repository

import (
	"context"

	"GreenLedger/server/internal/model"

	"gorm.io/gorm"
)

type SchemaRepository interface {
	// Replace 整体替换某连接器的全部 schema 条目（发现成功才调用）
	Replace(ctx context.Context, orgID, connectorID uint, entries []model.SchemaCacheEntry) error
	// Snapshot 取若干连接器的 schema 快照，推断引擎只读这个
	Snapshot(ctx context.Context, orgID uint, connectorIDs []uint) ([]model.SchemaCacheEntry, error)
}

type schemaRepository struct {
	db *gorm.DB
}

func NewSchemaRepository(db *gorm.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

func (r *schemaRepository) Replace(ctx context.Context, orgID, connectorID uint, entries []model.SchemaCacheEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("org_id = ? AND connector_id = ?", orgID, connectorID).
			Delete(&model.SchemaCacheEntry{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].OrgID = orgID
			entries[i].ConnectorID = connectorID
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

func (r *schemaRepository) Snapshot(ctx context.Context, orgID uint, connectorIDs []uint) ([]model.SchemaCacheEntry, error) {
	var entries []model.SchemaCacheEntry
	db := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if len(connectorIDs) > 0 {
		db = db.Where("connector_id IN ?", connectorIDs)
	}
	err := db.Order("connector_id, table_name, column_name").Find(&entries).Error
	return entries, err
}

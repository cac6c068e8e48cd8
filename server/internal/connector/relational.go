package connector

import (
	"context"
	"fmt"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// RelationalDBAdapter 直连客户的 Postgres 库。
// schema 发现走 information_schema，主外键是声明出来的，
// 所以这个源和 ERP 一样能产出 0.95 置信度的连接建议。
// Config: {"dsn_secret": "...", "tables": ["emission_records", ...]}
type RelationalDBAdapter struct {
	secrets core.SecretResolver
}

func NewRelationalDBAdapter(secrets core.SecretResolver) *RelationalDBAdapter {
	return &RelationalDBAdapter{secrets: secrets}
}

func (a *RelationalDBAdapter) ValidateConfig(config map[string]interface{}) error {
	if _, err := core.RequireString(config, "dsn_secret"); err != nil {
		return err
	}
	if _, err := configTables(config); err != nil {
		return err
	}
	return nil
}

func (a *RelationalDBAdapter) open(config map[string]interface{}) (*gorm.DB, error) {
	dsnName, err := core.RequireString(config, "dsn_secret")
	if err != nil {
		return nil, err
	}
	dsn, err := a.secrets.Resolve(dsnName)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, core.NewTransientError(err, "外部数据库连接失败")
	}
	return db, nil
}

func (a *RelationalDBAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	tables, err := configTables(config)
	if err != nil {
		return nil, err
	}
	db, err := a.open(config)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)

	var cols []core.ColumnInfo
	for _, table := range tables {
		// 列和类型
		type colRow struct {
			ColumnName string
			DataType   string
		}
		var colRows []colRow
		err := db.WithContext(ctx).Raw(
			`SELECT column_name, data_type FROM information_schema.columns
			 WHERE table_name = ? ORDER BY ordinal_position`, table).Scan(&colRows).Error
		if err != nil {
			return nil, core.NewTransientError(err, "读取列信息失败: %s", table)
		}

		// 主键/外键声明
		type keyRow struct {
			ColumnName     string
			ConstraintType string
			ForeignTable   string
			ForeignColumn  string
		}
		var keyRows []keyRow
		err = db.WithContext(ctx).Raw(
			`SELECT kcu.column_name, tc.constraint_type,
			        COALESCE(ccu.table_name, '') AS foreign_table,
			        COALESCE(ccu.column_name, '') AS foreign_column
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu
			   ON tc.constraint_name = kcu.constraint_name
			 LEFT JOIN information_schema.constraint_column_usage ccu
			   ON tc.constraint_name = ccu.constraint_name
			  AND tc.constraint_type = 'FOREIGN KEY'
			 WHERE tc.table_name = ?
			   AND tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`, table).Scan(&keyRows).Error
		if err != nil {
			return nil, core.NewTransientError(err, "读取键约束失败: %s", table)
		}

		keys := map[string]keyRow{}
		pks := map[string]bool{}
		for _, k := range keyRows {
			if k.ConstraintType == "PRIMARY KEY" {
				pks[k.ColumnName] = true
			} else {
				keys[k.ColumnName] = k
			}
		}

		for _, c := range colRows {
			info := core.ColumnInfo{
				Table:        table,
				Column:       c.ColumnName,
				DataType:     normalizePGType(c.DataType),
				IsPrimaryKey: pks[c.ColumnName],
			}
			if fk, ok := keys[c.ColumnName]; ok {
				info.IsForeignKey = true
				info.ForeignTable = fk.ForeignTable
				info.ForeignColumn = fk.ForeignColumn
			}
			cols = append(cols, info)
		}
	}
	return cols, nil
}

func (a *RelationalDBAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	tables, err := configTables(config)
	if err != nil {
		return nil, err
	}
	db, err := a.open(config)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)

	var records []core.RawRecord
	for _, table := range tables {
		var rows []map[string]interface{}
		// 表名来自连接器配置（建连接器的人本来就有库的访问权），不是终端用户输入
		if err := db.WithContext(ctx).Raw(fmt.Sprintf(`SELECT * FROM %q`, table)).Scan(&rows).Error; err != nil {
			return nil, core.NewTransientError(err, "读取数据失败: %s", table)
		}
		for _, r := range rows {
			records = append(records, core.RawRecord{Table: table, Payload: r})
		}
	}
	return records, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func normalizePGType(t string) string {
	switch t {
	case "integer", "bigint", "smallint", "numeric", "real", "double precision":
		return model.DataTypeNumeric
	case "timestamp without time zone", "timestamp with time zone", "date":
		return model.DataTypeTimestamp
	case "boolean":
		return model.DataTypeBoolean
	case "json", "jsonb":
		return model.DataTypeJSON
	default:
		return model.DataTypeText
	}
}

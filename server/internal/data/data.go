package data

import (
	"context"
	"fmt"
	"log"
	"time"

	"GreenLedger/server/internal/conf"
	"GreenLedger/server/internal/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 同步任务队列的 Redis Key
const SyncQueueKey = "greenledger:sync_tasks"

// Data 结构体持有所有数据库句柄
type Data struct {
	DB    *gorm.DB
	Redis *redis.Client
	Minio *minio.Client

	// 对象存储连接器默认读这个桶
	MinioBucket string
}

func NewData(cfg *conf.Config) (*Data, func(), error) {
	// 1. 连接 Postgres
	dsn := cfg.Data.DatabaseSource
	pgDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %v", err)
	}

	// 🔥 核心：自动迁移管道的全部表结构
	if err := AutoMigrate(pgDB); err != nil {
		return nil, nil, fmt.Errorf("schema migration failed: %v", err)
	}
	log.Println("✅ 数据库表结构迁移完成")

	// 2. 初始化 Redis (同步任务队列 + 连接器锁)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.RedisAddr,
		Password: cfg.Data.RedisPassword,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("redis 连接失败: %v", err)
	}
	log.Println("✅ Redis 连接成功")

	// 3. 初始化 MinIO (对象存储/Blob 连接器的后端)
	minioClient, err := minio.New(cfg.Data.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Data.MinioAccessKey, cfg.Data.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("minio 初始化失败: %v", err)
	}

	bucketName := cfg.Data.MinioBucket
	if bucketName == "" {
		bucketName = "greenledger-raw" // 兜底
	}
	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		// 对象存储挂了不影响主程序启动，只有用到该连接器类型时才会失败
		log.Printf("⚠️ 检查 MinIO Bucket 失败: %v", err)
	} else if !exists {
		if err := minioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Printf("⚠️ 创建 MinIO Bucket 失败: %v", err)
		} else {
			log.Printf("🎉 MinIO Bucket '%s' 创建成功", bucketName)
		}
	} else {
		log.Printf("✅ MinIO 连接成功 (Bucket '%s' 已存在)", bucketName)
	}

	d := &Data{
		DB:          pgDB,
		Redis:       rdb,
		Minio:       minioClient,
		MinioBucket: bucketName,
	}

	cleanup := func() {
		log.Println("正在关闭数据层资源...")
		if sqlDB, err := d.DB.DB(); err == nil {
			sqlDB.Close()
		}
		d.Redis.Close()
	}

	return d, cleanup, nil
}

// AutoMigrate 建表清单。测试里用 sqlite 也走这一个函数，保证结构一致。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Organization{},
		&model.Connector{},
		&model.SyncLog{},
		&model.SchemaCacheEntry{},
		&model.StagingRow{},
		&model.MappingProfile{},
		&model.MappingTable{},
		&model.MappingJoin{},
		&model.MappingField{},
		&model.KPIRule{},
		&model.MetricObservation{},
		&model.KPIResult{},
		&model.AuditLog{},
	)
}

// PushTask 将任务推入 Redis 列表 (生产者)
func (d *Data) PushTask(ctx context.Context, queue string, payload string) error {
	return d.Redis.LPush(ctx, queue, payload).Err()
}

// PopTask 阻塞式取任务 (消费者)，timeout=0 表示一直等
func (d *Data) PopTask(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	res, err := d.Redis.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		return "", err
	}
	return res[1], nil
}

// AcquireConnectorLock 同一连接器的同步必须串行，SETNX 抢锁。
// 拿不到说明已有同步在跑。
func (d *Data) AcquireConnectorLock(ctx context.Context, connectorID uint, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("greenledger:sync_lock:%d", connectorID)
	return d.Redis.SetNX(ctx, key, "1", ttl).Result()
}

func (d *Data) ReleaseConnectorLock(ctx context.Context, connectorID uint) {
	key := fmt.Sprintf("greenledger:sync_lock:%d", connectorID)
	d.Redis.Del(ctx, key)
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"

	"gorm.io/gorm"
)

// AuditService 哈希链审计日志。
// 同一组织的追加必须串行：每次追加要先读上一条的 output_hash，
// 并发写会把链写断，所以按组织加互斥锁。
type AuditService struct {
	Data *data.Data

	mu sync.Mutex
	// 每个组织一把锁
	orgLocks map[uint]*sync.Mutex
}

func NewAuditService(d *data.Data) *AuditService {
	return &AuditService{
		Data:     d,
		orgLocks: make(map[uint]*sync.Mutex),
	}
}

func (s *AuditService) lockFor(orgID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.orgLocks[orgID]
	if !ok {
		l = &sync.Mutex{}
		s.orgLocks[orgID] = l
	}
	return l
}

// HashPayload 规范化 JSON 的 sha256，输入/输出指纹都用它。
// encoding/json 对 map key 排序，所以同样内容哈希稳定。
func HashPayload(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// auditCanonical 条目自身内容的规范形态。注意不含 PrevHash——
// output_hash 只盖自己的内容，链关系由 prev_hash 单独承载。
type auditCanonical struct {
	OrgID     uint   `json:"org_id"`
	AgentName string `json:"agent_name"`
	EventType string `json:"event_type"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	InputHash string `json:"input_hash"`
	Timestamp int64  `json:"timestamp"`
}

// Append 追加一条审计记录并接上链。条目只追加，没有任何更新/删除路径。
func (s *AuditService) Append(ctx context.Context, entry *model.AuditLog) (*model.AuditLog, error) {
	if entry.OrgID == 0 {
		return nil, core.NewConfigError("审计条目缺少组织 ID")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entry.OutputHash = HashPayload(auditCanonical{
		OrgID:     entry.OrgID,
		AgentName: entry.AgentName,
		EventType: entry.EventType,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Status:    entry.Status,
		InputHash: entry.InputHash,
		Timestamp: entry.Timestamp.UnixNano(),
	})

	lock := s.lockFor(entry.OrgID)
	lock.Lock()
	defer lock.Unlock()

	// 读最近一条的 output_hash 作为本条的 prev_hash，首条为空
	var last model.AuditLog
	err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", entry.OrgID).
		Order("timestamp desc, id desc").
		First(&last).Error
	switch {
	case err == nil:
		entry.PrevHash = last.OutputHash
	case err == gorm.ErrRecordNotFound:
		entry.PrevHash = ""
	default:
		return nil, err
	}

	if err := s.Data.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// VerifyChain 按时间升序全链校验。发现断点立刻停（fail-fast），
// 返回第一个断点的下标，绝不自动修复。
func (s *AuditService) VerifyChain(ctx context.Context, orgID uint) (*dto.ChainVerifyResp, error) {
	var entries []model.AuditLog
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("timestamp asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	for i := 1; i < len(entries); i++ {
		prev := entries[i-1]
		cur := entries[i]
		if cur.PrevHash == "" || prev.OutputHash == "" {
			continue
		}
		if cur.PrevHash != prev.OutputHash {
			idx := i
			return &dto.ChainVerifyResp{
				Valid:    false,
				Entries:  len(entries),
				BrokenAt: &idx,
			}, core.NewIntegrityError("审计链在第 %d 条断裂 (org=%d)", i, orgID)
		}
	}

	return &dto.ChainVerifyResp{Valid: true, Entries: len(entries)}, nil
}

// List 审计查询：时间升序，暴露 prev_hash/output_hash 供外部独立校验
func (s *AuditService) List(ctx context.Context, orgID uint, req dto.AuditListReq) (*dto.AuditListResp, error) {
	var logs []model.AuditLog
	var total int64

	db := s.Data.DB.WithContext(ctx).Model(&model.AuditLog{}).Where("org_id = ?", orgID)
	if req.EventType != "" {
		db = db.Where("event_type = ?", req.EventType)
	}
	db.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := db.Order("timestamp asc, id asc").Limit(req.PageSize).Offset(offset).Find(&logs).Error; err != nil {
		return nil, err
	}

	return &dto.AuditListResp{Total: total, List: logs}, nil
}

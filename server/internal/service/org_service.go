package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/dto"
	"GreenLedger/server/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type OrgService struct {
	Data *data.Data
}

func NewOrgService(d *data.Data) *OrgService {
	return &OrgService{Data: d}
}

// CreateOrganization 创建组织并签发 API Key。
// Key 明文只在这里返回一次，库里只存 bcrypt Hash。
func (s *OrgService) CreateOrganization(ctx context.Context, req dto.CreateOrgReq) (*dto.OrgResp, error) {
	if req.Key == "" {
		// 生成一个 8 位的随机 Key，例如 "xk9d2m1a"
		req.Key = generateRandomKey(8)
	}
	// Key 必须唯一
	var count int64
	s.Data.DB.Model(&model.Organization{}).Where("key = ?", req.Key).Count(&count)
	if count > 0 {
		return nil, errors.New("组织标识(Key)已存在，请换一个")
	}

	// API Key 形态: <orgKey>.<secret>，中间件按 orgKey 查组织再比对 secret
	secret := strings.ReplaceAll(uuid.New().String(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	org := &model.Organization{
		Name:        req.Name,
		Description: req.Description,
		Key:         req.Key,
		APIKeyHash:  string(hash),
	}
	if err := s.Data.DB.WithContext(ctx).Create(org).Error; err != nil {
		return nil, err
	}

	return &dto.OrgResp{
		ID:          org.ID,
		Name:        org.Name,
		Description: org.Description,
		Key:         org.Key,
		APIKey:      org.Key + "." + secret,
		CreatedAt:   org.CreatedAt,
	}, nil
}

// ResolveAPIKey 中间件用：API Key → 组织 ID。
// 组织在每个组件调用里都是显式参数，不做隐式上下文查找。
func (s *OrgService) ResolveAPIKey(ctx context.Context, apiKey string) (uint, error) {
	parts := strings.SplitN(apiKey, ".", 2)
	if len(parts) != 2 {
		return 0, core.NewConfigError("API Key 格式非法")
	}
	var org model.Organization
	if err := s.Data.DB.WithContext(ctx).Where("key = ?", parts[0]).First(&org).Error; err != nil {
		return 0, core.NewConfigError("组织不存在")
	}
	if bcrypt.CompareHashAndPassword([]byte(org.APIKeyHash), []byte(parts[1])) != nil {
		return 0, core.NewConfigError("API Key 不匹配")
	}
	return org.ID, nil
}

func generateRandomKey(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

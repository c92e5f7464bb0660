package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

const settingCacheTTL = 5 * time.Minute

// SettingService 设置业务服务
type SettingService struct {
	repo               repository.SettingRepository
	commissionDefaults CommissionSetting
}

// NewSettingService 创建设置服务
func NewSettingService(repo repository.SettingRepository, commissionDefaults CommissionSetting) *SettingService {
	return &SettingService{
		repo:               repo,
		commissionDefaults: NormalizeCommissionSetting(commissionDefaults),
	}
}

// GetByKey 获取设置
func (s *SettingService) GetByKey(key string) (models.JSON, error) {
	ctx := context.Background()
	var cached models.JSON
	if hit, err := cache.GetJSON(ctx, settingCacheKey(key), &cached); err != nil {
		logger.Warnw("setting_cache_read_failed", "key", key, "error", err)
	} else if hit {
		return cached, nil
	}

	setting, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, nil
	}
	if err := cache.SetJSON(ctx, settingCacheKey(key), setting.ValueJSON, settingCacheTTL); err != nil {
		logger.Warnw("setting_cache_write_failed", "key", key, "error", err)
	}
	return setting.ValueJSON, nil
}

// Update 设置值
func (s *SettingService) Update(key string, value map[string]interface{}) (models.JSON, error) {
	normalized := s.normalizeSettingValueByKey(key, value)

	setting, err := s.repo.Upsert(key, normalized)
	if err != nil {
		return nil, err
	}
	if err := cache.Del(context.Background(), settingCacheKey(key)); err != nil {
		logger.Warnw("setting_cache_invalidate_failed", "key", key, "error", err)
	}
	return setting.ValueJSON, nil
}

// normalizeSettingValueByKey 按设置键执行归一化，避免非法值入库。
func (s *SettingService) normalizeSettingValueByKey(key string, value map[string]interface{}) models.JSON {
	switch key {
	case constants.SettingKeyCommissionConfig:
		setting := commissionSettingFromJSON(models.JSON(value), s.commissionDefaults)
		return CommissionSettingToMap(setting)
	default:
		return models.JSON(value)
	}
}

func settingCacheKey(key string) string {
	return "setting:" + strings.TrimSpace(key)
}

func parseSettingFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseFloat(trimmed, 64)
	default:
		return 0, fmt.Errorf("unsupported value type")
	}
}

func normalizeSettingText(raw interface{}) string {
	text, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

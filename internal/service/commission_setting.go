package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"github.com/shopspring/decimal"
)

const (
	commissionRateMin        = 0
	commissionRateMax        = 100
	commissionMinPayoutMin   = 0
	commissionPlatformFeeMax = 100
)

// CommissionSetting 佣金与结算配置
type CommissionSetting struct {
	DefaultRate        float64 `json:"default_rate"`         // 无规则命中时的默认比例（百分比）
	MinimumPayout      float64 `json:"minimum_payout"`       // 最低结算金额
	FeeHandling        string  `json:"fee_handling"`         // platform / vendor
	PlatformFeePercent float64 `json:"platform_fee_percent"` // 商家承担时的手续费比例
	TriggerStatus      string  `json:"trigger_status"`       // 触发佣金计算的订单状态
	Currency           string  `json:"currency"`             // 结算币种
}

// CommissionSettingSource 佣金配置来源
type CommissionSettingSource interface {
	GetCommissionSetting() (CommissionSetting, error)
}

// StaticCommissionSetting 固定配置来源
type StaticCommissionSetting CommissionSetting

// GetCommissionSetting 返回固定配置
func (s StaticCommissionSetting) GetCommissionSetting() (CommissionSetting, error) {
	return NormalizeCommissionSetting(CommissionSetting(s)), nil
}

// CommissionDefaultSetting 由启动配置生成默认佣金配置
func CommissionDefaultSetting(cfg *config.Config) CommissionSetting {
	if cfg == nil {
		return NormalizeCommissionSetting(CommissionSetting{DefaultRate: 10, MinimumPayout: 50})
	}
	return NormalizeCommissionSetting(CommissionSetting{
		DefaultRate:        cfg.Commission.DefaultRate,
		MinimumPayout:      cfg.Payout.MinimumAmount,
		FeeHandling:        cfg.Payout.FeeHandling,
		PlatformFeePercent: cfg.Payout.PlatformFeePercent,
		TriggerStatus:      cfg.Commission.TriggerStatus,
		Currency:           cfg.Commission.Currency,
	})
}

// NormalizeCommissionSetting 归一化佣金配置
func NormalizeCommissionSetting(setting CommissionSetting) CommissionSetting {
	setting.DefaultRate = clampFloat(roundSettingDecimal(setting.DefaultRate, 4), commissionRateMin, commissionRateMax)
	setting.MinimumPayout = roundSettingDecimal(setting.MinimumPayout, 2)
	if setting.MinimumPayout < commissionMinPayoutMin {
		setting.MinimumPayout = commissionMinPayoutMin
	}
	setting.PlatformFeePercent = clampFloat(roundSettingDecimal(setting.PlatformFeePercent, 4), 0, commissionPlatformFeeMax)

	switch strings.ToLower(strings.TrimSpace(setting.FeeHandling)) {
	case constants.FeeHandlingVendor:
		setting.FeeHandling = constants.FeeHandlingVendor
	default:
		setting.FeeHandling = constants.FeeHandlingPlatform
	}

	setting.TriggerStatus = strings.ToLower(strings.TrimSpace(setting.TriggerStatus))
	if setting.TriggerStatus == "" {
		setting.TriggerStatus = constants.OrderStatusCompleted
	}
	setting.Currency = strings.ToUpper(strings.TrimSpace(setting.Currency))
	if setting.Currency == "" {
		setting.Currency = "USD"
	}
	return setting
}

// ValidateCommissionSetting 校验佣金配置（在归一化之前调用，拒绝越界输入）
func ValidateCommissionSetting(setting CommissionSetting) error {
	if setting.DefaultRate < commissionRateMin || setting.DefaultRate > commissionRateMax {
		return fmt.Errorf("%w: 默认佣金比例必须在 0-100 之间", ErrCommissionConfigInvalid)
	}
	if setting.MinimumPayout < commissionMinPayoutMin {
		return fmt.Errorf("%w: 最低结算金额不能小于 0", ErrCommissionConfigInvalid)
	}
	if setting.PlatformFeePercent < 0 || setting.PlatformFeePercent > commissionPlatformFeeMax {
		return fmt.Errorf("%w: 手续费比例必须在 0-100 之间", ErrCommissionConfigInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(setting.FeeHandling)) {
	case "", constants.FeeHandlingPlatform, constants.FeeHandlingVendor:
	default:
		return fmt.Errorf("%w: 手续费承担方只能是 platform 或 vendor", ErrCommissionConfigInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(setting.TriggerStatus)) {
	case "", constants.OrderStatusPaid, constants.OrderStatusProcessing, constants.OrderStatusCompleted:
	default:
		return fmt.Errorf("%w: 不支持的触发状态 %s", ErrCommissionConfigInvalid, setting.TriggerStatus)
	}
	return nil
}

// DefaultRateDecimal 默认比例
func (s CommissionSetting) DefaultRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(s.DefaultRate).Round(4)
}

// MinimumPayoutDecimal 最低结算金额
func (s CommissionSetting) MinimumPayoutDecimal() decimal.Decimal {
	return decimal.NewFromFloat(s.MinimumPayout).Round(2)
}

// PlatformFeeDecimal 手续费比例
func (s CommissionSetting) PlatformFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(s.PlatformFeePercent).Round(4)
}

// CommissionSettingToMap 转换为 settings 存储结构
func CommissionSettingToMap(setting CommissionSetting) models.JSON {
	normalized := NormalizeCommissionSetting(setting)
	return models.JSON{
		"default_rate":         normalized.DefaultRate,
		"minimum_payout":       normalized.MinimumPayout,
		"fee_handling":         normalized.FeeHandling,
		"platform_fee_percent": normalized.PlatformFeePercent,
		"trigger_status":       normalized.TriggerStatus,
		"currency":             normalized.Currency,
	}
}

func commissionSettingFromJSON(raw models.JSON, fallback CommissionSetting) CommissionSetting {
	result := fallback
	if value, ok := raw["default_rate"]; ok {
		if parsed, err := parseSettingFloat(value); err == nil {
			result.DefaultRate = parsed
		}
	}
	if value, ok := raw["minimum_payout"]; ok {
		if parsed, err := parseSettingFloat(value); err == nil {
			result.MinimumPayout = parsed
		}
	}
	if value, ok := raw["fee_handling"]; ok {
		if text := normalizeSettingText(value); text != "" {
			result.FeeHandling = text
		}
	}
	if value, ok := raw["platform_fee_percent"]; ok {
		if parsed, err := parseSettingFloat(value); err == nil {
			result.PlatformFeePercent = parsed
		}
	}
	if value, ok := raw["trigger_status"]; ok {
		if text := normalizeSettingText(value); text != "" {
			result.TriggerStatus = text
		}
	}
	if value, ok := raw["currency"]; ok {
		if text := normalizeSettingText(value); text != "" {
			result.Currency = text
		}
	}
	return NormalizeCommissionSetting(result)
}

// GetCommissionSetting 获取佣金设置（优先 settings，空时回退启动配置）
func (s *SettingService) GetCommissionSetting() (CommissionSetting, error) {
	if s == nil {
		return NormalizeCommissionSetting(CommissionSetting{}), nil
	}
	fallback := s.commissionDefaults
	value, err := s.GetByKey(constants.SettingKeyCommissionConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return commissionSettingFromJSON(value, fallback), nil
}

// UpdateCommissionSetting 更新佣金设置
func (s *SettingService) UpdateCommissionSetting(setting CommissionSetting) (CommissionSetting, error) {
	if err := ValidateCommissionSetting(setting); err != nil {
		return s.commissionDefaults, err
	}
	normalized := NormalizeCommissionSetting(setting)
	if _, err := s.Update(constants.SettingKeyCommissionConfig, CommissionSettingToMap(normalized)); err != nil {
		return s.commissionDefaults, err
	}
	return normalized, nil
}

func roundSettingDecimal(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

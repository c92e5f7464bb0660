package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid   = errors.New("stripe config invalid")
	ErrRequestFailed   = errors.New("stripe request failed")
	ErrRequestTimeout  = errors.New("stripe request timeout")
	ErrResponseInvalid = errors.New("stripe response invalid")
	ErrAccountNotFound = errors.New("stripe account not found")
	ErrOutcomeUnknown  = errors.New("stripe request outcome unknown")
)

const (
	defaultAPIBaseURL = "https://api.stripe.com"
	defaultTimeout    = 12 * time.Second
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe Connect 配置。
type Config struct {
	SecretKey  string        `json:"secret_key"`
	APIBaseURL string        `json:"api_base_url"`
	APIVersion string        `json:"api_version"`
	Timeout    time.Duration `json:"-"`
}

// TransferInput 创建转账输入。
type TransferInput struct {
	Destination    string
	Amount         string
	Currency       string
	TransferGroup  string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// TransferResult 转账返回。
type TransferResult struct {
	TransferID    string
	Destination   string
	Amount        string
	Currency      string
	TransferGroup string
	Reversed      bool
	CreatedAt     *time.Time
	Raw           map[string]interface{}
}

// AccountResult 关联账户查询返回。
type AccountResult struct {
	AccountID      string
	ChargesEnabled bool
	PayoutsEnabled bool
	Raw            map[string]interface{}
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	cfg.normalize()
	if cfg.SecretKey == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// CreateTransfer 向关联账户发起转账（POST /v1/transfers）。
func CreateTransfer(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	minorAmount, err := toMinorAmount(input.Amount, currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorAmount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destination)
	if group := strings.TrimSpace(input.TransferGroup); group != "" {
		form.Set("transfer_group", group)
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		form.Set("description", desc)
	}
	for key, value := range input.Metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		form.Set("metadata["+key+"]", value)
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		headers["Idempotency-Key"] = key
	}
	body, statusCode, err := doRequest(ctx, cfg, http.MethodPost, "/v1/transfers", form, headers)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: status %d", err, ErrOutcomeUnknown, statusCode)
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
	case isDefiniteRejection(statusCode):
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, readErrorMessage(raw, statusCode))
	default:
		return nil, fmt.Errorf("%w: %w: %s", ErrRequestFailed, ErrOutcomeUnknown, readErrorMessage(raw, statusCode))
	}
	result := parseTransfer(raw)
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: %w: missing transfer id", ErrResponseInvalid, ErrOutcomeUnknown)
	}
	return result, nil
}

// isDefiniteRejection 4xx 表示请求未被执行；409 为同一幂等键的并发请求，结果仍不确定
func isDefiniteRejection(statusCode int) bool {
	return statusCode >= 400 && statusCode < 500 && statusCode != http.StatusConflict
}

// RetrieveAccount 查询关联账户（GET /v1/accounts/{id}）。
func RetrieveAccount(ctx context.Context, cfg *Config, accountID string) (*AccountResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrConfigInvalid)
	}
	body, statusCode, err := doRequest(ctx, cfg, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), nil, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, readErrorMessage(raw, statusCode))
	}
	return &AccountResult{
		AccountID:      readString(raw, "id"),
		ChargesEnabled: readBool(raw, "charges_enabled"),
		PayoutsEnabled: readBool(raw, "payouts_enabled"),
		Raw:            raw,
	}, nil
}

// FindTransferByGroup 按 transfer_group 查询转账（GET /v1/transfers），未找到返回 nil。
func FindTransferByGroup(ctx context.Context, cfg *Config, transferGroup string) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	transferGroup = strings.TrimSpace(transferGroup)
	if transferGroup == "" {
		return nil, fmt.Errorf("%w: transfer_group is required", ErrConfigInvalid)
	}
	query := url.Values{}
	query.Set("transfer_group", transferGroup)
	query.Set("limit", "1")
	body, statusCode, err := doRequest(ctx, cfg, http.MethodGet, "/v1/transfers?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, readErrorMessage(raw, statusCode))
	}
	items, _ := raw["data"].([]interface{})
	for _, item := range items {
		mapped, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		result := parseTransfer(mapped)
		if result.TransferID != "" && !result.Reversed {
			return result, nil
		}
	}
	return nil, nil
}

// IsTimeout 判断错误是否为请求超时。
func IsTimeout(err error) bool {
	return errors.Is(err, ErrRequestTimeout)
}

// IsOutcomeUnknown 请求可能已被渠道执行但无法确认结果（传输中断、取消、5xx、响应无法解析）。
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown) || errors.Is(err, ErrRequestTimeout)
}

func parseTransfer(raw map[string]interface{}) *TransferResult {
	currency := strings.ToUpper(readString(raw, "currency"))
	result := &TransferResult{
		TransferID:    readString(raw, "id"),
		Destination:   readString(raw, "destination"),
		Currency:      currency,
		TransferGroup: readString(raw, "transfer_group"),
		Reversed:      readBool(raw, "reversed"),
		Raw:           raw,
	}
	if amount := readInt64(raw, "amount"); amount > 0 {
		result.Amount = fromMinorAmount(amount, currency)
	}
	if created := readInt64(raw, "created"); created > 0 {
		createdAt := time.Unix(created, 0)
		result.CreatedAt = &createdAt
	}
	return result
}

func readErrorMessage(raw map[string]interface{}, statusCode int) string {
	errBody := readMap(raw, "error")
	if msg := readString(errBody, "message"); msg != "" {
		return msg
	}
	return fmt.Sprintf("http status %d", statusCode)
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.APIVersion = strings.TrimSpace(c.APIVersion)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

func toMinorAmount(amount string, currency string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: amount is invalid", ErrConfigInvalid)
	}
	if parsed.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	scale := currencyScale(currency)
	minor := parsed.Shift(int32(scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount precision is invalid", ErrConfigInvalid)
	}
	return minor.IntPart(), nil
}

func fromMinorAmount(minor int64, currency string) string {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale)).StringFixed(int32(scale))
}

func currencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func doRequest(ctx context.Context, cfg *Config, method, path string, form url.Values, headers map[string]string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := cfg.APIBaseURL + path
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cfg.APIVersion != "" {
		req.Header.Set("Stripe-Version", cfg.APIVersion)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := (&http.Client{Timeout: cfg.Timeout}).Do(req)
	if err != nil {
		// 请求发出后连接中断或上下文取消时，渠道侧可能已经处理
		if isTimeoutError(ctx, err) {
			return nil, 0, fmt.Errorf("%w: %w: %w", ErrRequestTimeout, ErrOutcomeUnknown, err)
		}
		return nil, 0, fmt.Errorf("%w: %w: %w", ErrRequestFailed, ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %w: read response failed", ErrRequestTimeout, ErrOutcomeUnknown)
	}
	return body, resp.StatusCode, nil
}

func isTimeoutError(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	value, ok := raw[key].(bool)
	return ok && value
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, _ := raw[key].(map[string]interface{})
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	switch typed := raw[key].(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

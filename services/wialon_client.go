package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"backend_fleetwatch/config"
	"backend_fleetwatch/logger"

	"go.uber.org/zap"
)

// Ошибки авторизации в Wialon. Все три не повторяются.
var (
	ErrAuthConfig    = errors.New("wialon token не настроен")
	ErrAuthRejected  = errors.New("wialon отклонил авторизацию")
	ErrAuthNoSession = errors.New("wialon не вернул session id")
)

// ProviderAPIError ошибка, которую Wialon вернул в теле ответа
type ProviderAPIError struct {
	Operation string
	Code      string
	Reason    string
}

func (e *ProviderAPIError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "причина не указана"
	}
	return fmt.Sprintf("ошибка Wialon API [%s] код %s: %s", e.Operation, e.Code, reason)
}

// WialonSession сессия Wialon
type WialonSession struct {
	SID  string
	User map[string]interface{}
}

// RawUnitRecord запись юнита в том виде, в каком её отдает Wialon, с уже извлеченными полями
type RawUnitRecord struct {
	ID          int64
	Name        string
	IMEI        *string
	UnitType    *string
	Plates      *string
	PhoneNumber *string
	LastMessage map[string]interface{} // lmsg
	Raw         map[string]interface{}
}

// WialonClientInterface интерфейс для работы с Wialon Remote API
type WialonClientInterface interface {
	Authenticate(ctx context.Context) (*WialonSession, error)
	FetchUnits(ctx context.Context, sid string) ([]RawUnitRecord, error)
	IsHealthy(ctx context.Context) error
}

// WialonClient клиент для Wialon Remote API (ajax.html)
type WialonClient struct {
	BaseURL    string
	Token      string
	DataFlags  int64
	HTTPClient *http.Client
	Logger     *zap.Logger

	retry *RetryExecutor
}

// NewWialonClient создает клиент по конфигурации
func NewWialonClient(cfg config.WialonConfig, log *zap.Logger) *WialonClient {
	if log == nil {
		log = zap.NewNop()
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &WialonClient{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		Token:      cfg.Token,
		DataFlags:  cfg.DataFlags,
		HTTPClient: client,
		Logger:     log,
		retry:      NewRetryExecutor(cfg.MaxRetries, cfg.RetryDelay, log),
	}
}

// Authenticate авторизуется по токену (svc=token/login)
func (c *WialonClient) Authenticate(ctx context.Context) (*WialonSession, error) {
	if c.Token == "" {
		logger.Critical(c.Logger, "wialon token is not configured")
		return nil, Permanent(ErrAuthConfig)
	}

	params, err := json.Marshal(map[string]string{"token": c.Token})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации параметров авторизации: %w", err)
	}

	form := url.Values{}
	form.Set("svc", "token/login")
	form.Set("params", string(params))

	data, err := c.postForm(ctx, c.BaseURL+"/wialon/ajax.html", form)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса авторизации: %w", err)
	}

	if code, ok := data["error"]; ok {
		reason := stringValue(data["reason"])
		c.Logger.Error("wialon login rejected", zap.String("code", fmt.Sprint(code)), zap.String("reason", reason))
		if reason == "" {
			reason = fmt.Sprintf("код ошибки %v", code)
		}
		return nil, Permanent(fmt.Errorf("%w: %s", ErrAuthRejected, reason))
	}

	sid := stringValue(data["eid"])
	if sid == "" {
		c.Logger.Error("wialon login succeeded without session id")
		return nil, Permanent(ErrAuthNoSession)
	}

	session := &WialonSession{SID: sid}
	if user, ok := data["user"].(map[string]interface{}); ok {
		session.User = user
	}

	c.Logger.Info("wialon login succeeded")
	return session, nil
}

// FetchUnits возвращает полный список юнитов (svc=core/search_items)
func (c *WialonClient) FetchUnits(ctx context.Context, sid string) ([]RawUnitRecord, error) {
	params, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"itemsType":     "avl_unit",
			"propName":      "sys_name",
			"propValueMask": "*",
			"sortType":      "sys_name",
		},
		"force": 1,
		"flags": c.DataFlags,
		"from":  0,
		"to":    0,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации параметров поиска: %w", err)
	}

	form := url.Values{}
	form.Set("svc", "core/search_items")
	form.Set("params", string(params))
	form.Set("sid", sid)

	endpoint := c.BaseURL + "/wialon/ajax.html?flags=1024"
	data, err := Retry(ctx, c.retry, "wialon.search_items", func(ctx context.Context) (map[string]interface{}, error) {
		return c.postForm(ctx, endpoint, form)
	})
	if err != nil {
		c.Logger.Error("failed to fetch wialon units", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения юнитов Wialon: %w", err)
	}

	if code, ok := data["error"]; ok {
		apiErr := &ProviderAPIError{
			Operation: "core/search_items",
			Code:      fmt.Sprint(code),
			Reason:    stringValue(data["reason"]),
		}
		c.Logger.Error("wialon search_items returned error", zap.String("code", apiErr.Code), zap.String("reason", apiErr.Reason))
		// Ошибка API в ответе 200 не исправится повтором
		return nil, Permanent(apiErr)
	}

	items, _ := data["items"].([]interface{})
	records := make([]RawUnitRecord, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		record, ok := ParseUnitRecord(item)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	c.Logger.Info("wialon units fetched", zap.Int("items", len(items)), zap.Int("records", len(records)))
	return records, nil
}

// IsHealthy проверяет доступность Wialon
func (c *WialonClient) IsHealthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/wialon/ajax.html?svc=core/get_server_time", nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса проверки здоровья: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса проверки здоровья: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("API недоступно, статус: %d", resp.StatusCode)
	}
	return nil
}

// postForm отправляет form-encoded запрос и декодирует JSON объект ответа
func (c *WialonClient) postForm(ctx context.Context, endpoint string, form url.Values) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ошибка HTTP %d от Wialon", resp.StatusCode)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var data map[string]interface{}
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа Wialon: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("пустой ответ Wialon")
	}
	return data, nil
}

// ParseUnitRecord извлекает поля юнита из элемента search_items.
// Записи без id или nm отбрасываются.
func ParseUnitRecord(item map[string]interface{}) (RawUnitRecord, bool) {
	id, ok := toInt64(item["id"])
	if !ok {
		return RawUnitRecord{}, false
	}
	name, ok := item["nm"].(string)
	if !ok {
		return RawUnitRecord{}, false
	}

	record := RawUnitRecord{
		ID:          id,
		Name:        name,
		IMEI:        optionalString(item["uid"]),
		UnitType:    optionalString(item["hw"]),
		Plates:      extractPlates(item),
		PhoneNumber: optionalString(item["ph"]),
		Raw:         item,
	}
	if record.PhoneNumber == nil {
		record.PhoneNumber = optionalString(item["ph2"])
	}
	if lmsg, ok := item["lmsg"].(map[string]interface{}); ok {
		record.LastMessage = lmsg
	}
	return record, true
}

// extractPlates ищет поле registration_plate в pflds, затем в flds, иначе берет cfl
func extractPlates(item map[string]interface{}) *string {
	for _, fieldType := range []string{"pflds", "flds"} {
		for _, field := range fieldList(item[fieldType]) {
			n, nOK := field["n"].(string)
			v, vOK := field["v"]
			if !nOK || !vOK || v == nil {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(n), "registration_plate") {
				plates := strings.TrimSpace(stringValue(v))
				if plates != "" {
					return &plates
				}
			}
		}
	}

	if cfl := strings.TrimSpace(stringValue(item["cfl"])); cfl != "" {
		return &cfl
	}
	return nil
}

// fieldList принимает как список, так и объект {"1": {...}} - Wialon отдает оба варианта
func fieldList(value interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := value.(type) {
	case []interface{}:
		for _, f := range v {
			if m, ok := f.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m, ok := v[k].(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func optionalString(value interface{}) *string {
	s := stringValue(value)
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

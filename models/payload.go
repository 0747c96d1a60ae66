package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload непрозрачный набор ключ/значение от Wialon (снимок телеметрии алерта).
// Хранится в JSON колонке, читается только через типизированные методы доступа.
type Payload map[string]interface{}

// Value реализует driver.Valuer
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации payload: %w", err)
	}
	return string(b), nil
}

// Scan реализует sql.Scanner
func (p *Payload) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("неподдерживаемый тип payload: %T", value)
	}

	decoded := Payload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("ошибка десериализации payload: %w", err)
		}
	}
	*p = decoded
	return nil
}

// GormDataType тип колонки для миграций
func (Payload) GormDataType() string {
	return "json"
}

// Has проверяет наличие непустого значения по ключу
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String возвращает строковое значение; числа приводятся к строке
func (p Payload) String(key string) (string, bool) {
	switch v := p[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// StringOr возвращает строку или значение по умолчанию
func (p Payload) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Int64 возвращает целое значение. Дробные числа не принимаются.
func (p Payload) Int64(key string) (int64, bool) {
	return toInt64(p[key])
}

// Float64 возвращает числовое значение
func (p Payload) Float64(key string) (float64, bool) {
	return toFloat64(p[key])
}

// FloatOr возвращает число или значение по умолчанию
func (p Payload) FloatOr(key string, def float64) float64 {
	if f, ok := p.Float64(key); ok {
		return f
	}
	return def
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParameterValue достает параметр датчика из блока p последнего сообщения.
// Поддерживаются оба формата Wialon: объект {"name": value} или {"name": {"v": value}}
// и список [{"n": "name", "v": value}]. Если параметр не найден, возвращается def.
func ParameterValue(params interface{}, name string, def interface{}) interface{} {
	switch p := params.(type) {
	case map[string]interface{}:
		if len(p) == 0 {
			return def
		}
		if value, ok := p[name]; ok && value != nil {
			return unwrapParam(value)
		}
		for _, item := range p {
			if v, ok := namedParam(item, name); ok {
				if v == nil {
					return def
				}
				return v
			}
		}
	case []interface{}:
		for _, item := range p {
			if v, ok := namedParam(item, name); ok {
				if v == nil {
					return def
				}
				return v
			}
		}
	}
	return def
}

func unwrapParam(value interface{}) interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		if v, ok := m["v"]; ok {
			return v
		}
		if v, ok := m["value"]; ok {
			return v
		}
	}
	return value
}

func namedParam(item interface{}, name string) (interface{}, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return nil, false
	}
	n, ok := m["n"].(string)
	if !ok || n != name {
		return nil, false
	}
	return m["v"], true
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(math.Round(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Round(f)), true
		}
	}
	return 0, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
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

// toBool приводит значение датчика к bool: 0, "0", "" и false считаются выключенным состоянием
func toBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0"
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	}
	if f, ok := toFloat64(value); ok {
		return f != 0
	}
	return true
}

func intPtr(value interface{}) *int {
	i, ok := toInt64(value)
	if !ok {
		return nil
	}
	n := int(i)
	return &n
}

func int64Ptr(value interface{}) *int64 {
	i, ok := toInt64(value)
	if !ok {
		return nil
	}
	return &i
}

func floatPtr(value interface{}) *float64 {
	f, ok := toFloat64(value)
	if !ok {
		return nil
	}
	return &f
}

// toNullDecimal переводит координату в decimal без потери точности строкового представления
func toNullDecimal(value interface{}) decimal.NullDecimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := value.(type) {
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return decimal.NullDecimal{}
	}
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(7))
}

// firstPresent возвращает первое непустое значение
func firstPresent(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ハイパーパラメータの値はYAMLやグリッド定義から interface{} として届くため、
// 推定器のSetParamsはこれらの関数で型を揃えます。

// ToFloat は数値をfloat64に変換します。
func ToFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T (%v)", v, v)
	}
}

// ToInt は整数値をintに変換します。小数部を持つfloatは拒否します。
func ToInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T (%v)", v, v)
	}
}

// ToOptionalInt はnilを -1（無制限）として扱うToIntです。
func ToOptionalInt(v interface{}) (int, error) {
	if v == nil {
		return -1, nil
	}
	if s, ok := v.(string); ok && (s == "none" || s == "None" || s == "") {
		return -1, nil
	}
	return ToInt(v)
}

// ToString は文字列値を返します。nilは "none" として扱います。
func ToString(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil:
		return "none", nil
	case string:
		return x, nil
	default:
		return "", fmt.Errorf("expected a string, got %T (%v)", v, v)
	}
}

// FormatParams はパラメータをキー順に並べた文字列にします。ログや表で使います。
//
//	{"C": 1.0, "gamma": 0.1} -> "C=1 gamma=0.1"
func FormatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := params[k]
		if v == nil {
			v = "none"
		}
		parts[i] = fmt.Sprintf("%s=%v", k, v)
	}
	return strings.Join(parts, " ")
}

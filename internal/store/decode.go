package store

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Decode maps rows onto out, which must be a pointer to a slice of structs tagged with
// `mapstructure:"column"`. Driver values are coerced: integers to bools (which also reads the
// legacy "1" correctness marker as true), text to times and numbers to decimals.
func Decode(rows []Row, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			decimalHook,
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("store: new decoder: %w", err)
	}

	if rows == nil {
		rows = []Row{}
	}

	if err := d.Decode(rows); err != nil {
		return fmt.Errorf("store: decode: %w", err)
	}
	return nil
}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	s, ok := data.(string)
	if !ok {
		return data, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unsupported time format %q", s)
}

func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case reflect.TypeOf(decimal.Decimal{}):
		return toDecimal(data)
	case reflect.TypeOf(decimal.NullDecimal{}):
		d, err := toDecimal(data)
		if err != nil {
			return nil, err
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	}
	return data, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case string:
		return decimal.NewFromString(x)
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}

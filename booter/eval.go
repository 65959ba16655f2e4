package booter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

var durationType = reflect.TypeOf(time.Duration(0))

// EvalObject assigns the cty object value onto obj, which must be a pointer.
// Object keys match exported field names exactly.
func EvalObject(objName string, obj any, value cty.Value) error {
	ref := reflect.ValueOf(obj)
	if ref.Kind() != reflect.Pointer || ref.IsNil() {
		return fmt.Errorf("%s should be a non-nil pointer", objName)
	}
	if value.IsNull() {
		return nil
	}
	return EvalReflectValue(objName, ref, value)
}

func EvalReflectValue(refName string, ref reflect.Value, value cty.Value) error {
	if ref.Kind() == reflect.Pointer {
		if ref.IsNil() {
			ref.Set(reflect.New(ref.Type().Elem()))
		}
		ref = ref.Elem()
	}
	if !value.IsKnown() || value.IsNull() {
		return nil
	}
	if ref.Type() == durationType {
		d, err := DurationFromCty(value)
		if err != nil {
			return fmt.Errorf("%s should be duration, %s", refName, err.Error())
		}
		ref.SetInt(int64(d))
		return nil
	}
	switch ref.Kind() {
	case reflect.Struct:
		if !value.Type().IsObjectType() && !value.Type().IsMapType() {
			return fmt.Errorf("%s should be object as %s", refName, ref.Type().Name())
		}
		for k, v := range value.AsValueMap() {
			field := ref.FieldByName(k)
			if !field.IsValid() || !field.CanSet() {
				return fmt.Errorf("%s field not found in %s", k, refName)
			}
			if err := EvalReflectValue(refName+"."+k, field, v); err != nil {
				return err
			}
		}
	case reflect.String:
		if value.Type() != cty.String {
			return fmt.Errorf("%s should be string", refName)
		}
		ref.SetString(value.AsString())
	case reflect.Bool:
		v, err := BoolFromCty(value)
		if err != nil {
			return fmt.Errorf("%s should be bool, %s", refName, err.Error())
		}
		ref.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := Int64FromCty(value)
		if err != nil {
			return fmt.Errorf("%s should be int, %s", refName, err.Error())
		}
		if ref.OverflowInt(v) {
			return fmt.Errorf("%s value %d overflows %s", refName, v, ref.Kind())
		}
		ref.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := Int64FromCty(value)
		if err != nil || v < 0 {
			return fmt.Errorf("%s should be uint", refName)
		}
		if ref.OverflowUint(uint64(v)) {
			return fmt.Errorf("%s value %d overflows %s", refName, v, ref.Kind())
		}
		ref.SetUint(uint64(v))
	case reflect.Float32, reflect.Float64:
		v, err := Float64FromCty(value)
		if err != nil {
			return fmt.Errorf("%s should be float, %s", refName, err.Error())
		}
		ref.SetFloat(v)
	case reflect.Slice:
		var vs []cty.Value
		if value.Type().IsObjectType() {
			// a single nested block
			vs = []cty.Value{value}
		} else if value.CanIterateElements() {
			vs = value.AsValueSlice()
		} else {
			return fmt.Errorf("%s should be list", refName)
		}
		slice := reflect.MakeSlice(ref.Type(), len(vs), len(vs))
		for i, elm := range vs {
			if err := EvalReflectValue(fmt.Sprintf("%s[%d]", refName, i), slice.Index(i), elm); err != nil {
				return err
			}
		}
		ref.Set(slice)
	case reflect.Map:
		if ref.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%s unsupported map key type %s", refName, ref.Type().Key())
		}
		if !value.Type().IsObjectType() && !value.Type().IsMapType() {
			return fmt.Errorf("%s should be map", refName)
		}
		maps := reflect.MakeMap(ref.Type())
		valType := ref.Type().Elem()
		for k, v := range value.AsValueMap() {
			val := reflect.New(valType).Elem()
			if err := EvalReflectValue(fmt.Sprintf("%s[%q]", refName, k), val, v); err != nil {
				return err
			}
			maps.SetMapIndex(reflect.ValueOf(k).Convert(ref.Type().Key()), val)
		}
		ref.Set(maps)
	default:
		return fmt.Errorf("unsupported reflection %s type: %s", refName, ref.Kind())
	}
	return nil
}

func IntFromCty(value cty.Value) (int, error) {
	v, err := Int64FromCty(value)
	return int(v), err
}

func Int64FromCty(value cty.Value) (int64, error) {
	switch value.Type() {
	case cty.Number:
		f := value.AsBigFloat()
		if !f.IsInt() {
			return 0, fmt.Errorf("%s is not an integer", f.String())
		}
		l, _ := f.Int64()
		return l, nil
	case cty.String:
		return strconv.ParseInt(strings.TrimSpace(value.AsString()), 10, 64)
	default:
		return 0, fmt.Errorf("value is not a number, %s", value.Type().FriendlyName())
	}
}

func Float64FromCty(value cty.Value) (float64, error) {
	switch value.Type() {
	case cty.Number:
		f, _ := value.AsBigFloat().Float64()
		return f, nil
	case cty.String:
		return strconv.ParseFloat(strings.TrimSpace(value.AsString()), 64)
	default:
		return 0, fmt.Errorf("value is not a number, %s", value.Type().FriendlyName())
	}
}

func BoolFromCty(value cty.Value) (bool, error) {
	switch value.Type() {
	case cty.Bool:
		return value.True(), nil
	case cty.String:
		switch strings.ToLower(value.AsString()) {
		case "true", "t", "yes", "y", "on":
			return true, nil
		case "false", "f", "no", "n", "off":
			return false, nil
		default:
			return false, fmt.Errorf("%q is not bool compatible", value.AsString())
		}
	default:
		return false, fmt.Errorf("value is not a bool, %s", value.Type().FriendlyName())
	}
}

// DurationFromCty accepts Go duration strings ("100ms", "2h") and plain
// numbers, which are taken as milliseconds.
func DurationFromCty(value cty.Value) (time.Duration, error) {
	switch value.Type() {
	case cty.Number:
		ms, err := Int64FromCty(value)
		return time.Duration(ms) * time.Millisecond, err
	case cty.String:
		s := strings.TrimSpace(value.AsString())
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	default:
		return 0, fmt.Errorf("value is not a duration, %s", value.Type().FriendlyName())
	}
}

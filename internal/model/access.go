package model

import (
	"fmt"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

func fieldValue(row any, f *Field) (reflect.Value, error) {
	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("model: nil row")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("model: row of kind %s is not a struct", v.Kind())
	}
	fv := v.FieldByName(f.GoName)
	if !fv.IsValid() {
		return reflect.Value{}, fmt.Errorf("model: %s has no field %s", v.Type().Name(), f.GoName)
	}
	return fv, nil
}

// Get returns the value of a field normalised to string, int64, time.Time or nil.
func Get(row any, f *Field) (any, error) {
	fv, err := fieldValue(row, f)
	if err != nil {
		return nil, err
	}
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	switch {
	case fv.Type() == timeType:
		return fv.Interface().(time.Time), nil
	case fv.Kind() == reflect.String:
		return fv.String(), nil
	case fv.CanInt():
		return fv.Int(), nil
	}
	return fv.Interface(), nil
}

// GetString returns a string field, or "" when it is nil.
func GetString(row any, f *Field) string {
	v, err := Get(row, f)
	if err != nil || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set assigns value to the field, converting between compatible representations
// (string and named string types, integer widths, value and pointer).
func Set(row any, f *Field, value any) error {
	fv, err := fieldValue(row, f)
	if err != nil {
		return err
	}
	if !fv.CanSet() {
		return fmt.Errorf("model: field %s is not settable", f.Name)
	}

	rv := reflect.ValueOf(value)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}

	if !rv.IsValid() {
		if fv.Kind() != reflect.Ptr {
			return fmt.Errorf("model: field %s is not nullable", f.Name)
		}
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	base := fv.Type()
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	converted, err := convert(rv, base, f)
	if err != nil {
		return err
	}

	if fv.Kind() == reflect.Ptr {
		p := reflect.New(base)
		p.Elem().Set(converted)
		fv.Set(p)
		return nil
	}
	fv.Set(converted)
	return nil
}

func convert(rv reflect.Value, to reflect.Type, f *Field) (reflect.Value, error) {
	switch {
	case to == timeType:
		if rv.Type() == timeType {
			return rv, nil
		}
	case to.Kind() == reflect.String:
		if rv.Kind() == reflect.String {
			return rv.Convert(to), nil
		}
	case to.Kind() >= reflect.Int && to.Kind() <= reflect.Int64:
		if rv.CanInt() {
			return reflect.ValueOf(rv.Int()).Convert(to), nil
		}
		if rv.CanUint() {
			return reflect.ValueOf(rv.Uint()).Convert(to), nil
		}
		if rv.CanFloat() && rv.Float() == float64(int64(rv.Float())) {
			return reflect.ValueOf(int64(rv.Float())).Convert(to), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("model: cannot assign %s to field %s of kind %s", rv.Type(), f.Name, f.Kind)
}

// CheckValue reports whether value could be stored in a field of kind f.Kind.
// Nil is accepted only for nullable fields.
func CheckValue(f *Field, value any) error {
	rv := reflect.ValueOf(value)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		if f.Nullable {
			return nil
		}
		return fmt.Errorf("model: field %s is not nullable", f.Name)
	}
	ok := false
	switch f.Kind {
	case KindString:
		ok = rv.Kind() == reflect.String
	case KindInt:
		ok = rv.CanInt() || rv.CanUint()
	case KindTime:
		ok = rv.Type() == timeType
	case KindFloat:
		ok = rv.CanInt() || rv.CanUint() || rv.CanFloat()
	}
	if !ok {
		return fmt.Errorf("model: value of type %s does not fit field %s of kind %s", rv.Type(), f.Name, f.Kind)
	}
	return nil
}

// Normalize returns value in the form Get would report it, for use as a query argument.
func Normalize(value any) any {
	rv := reflect.ValueOf(value)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	switch {
	case rv.Type() == timeType:
		return rv.Interface()
	case rv.Kind() == reflect.String:
		return rv.String()
	case rv.CanInt():
		return rv.Int()
	case rv.CanUint():
		return int64(rv.Uint())
	}
	return rv.Interface()
}

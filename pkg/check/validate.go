package check

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validatable is implemented by anything that has fields that should be validated.
type Validatable interface {
	Validate() []error
}

// Validate walks the provided value and collects the errors reported by every Validatable it
// contains, including the value itself. The result is nil when all checks pass.
func Validate(v interface{}) error {
	errs := validate(reflect.ValueOf(v), "root")
	if len(errs) == 0 {
		return nil
	}
	return multierror.Append(&multierror.Error{}, errs...).ErrorOrNil()
}

func validate(val reflect.Value, path string) []error {
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		return validate(val.Elem(), path)
	}

	errs := ownErrors(val, path)
	switch val.Kind() {
	case reflect.Slice:
		for i := 0; i < val.Len(); i++ {
			errs = append(errs, validate(val.Index(i), fmt.Sprintf("%s[%d]", path, i))...)
		}
	case reflect.Map:
		for _, key := range val.MapKeys() {
			errs = append(errs, validate(val.MapIndex(key),
				fmt.Sprintf("%s[%s]", path, key.Interface()))...)
		}
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			if !field.CanInterface() {
				continue
			}
			errs = append(errs, validate(field,
				fmt.Sprintf("%s.%s", path, val.Type().Field(i).Name))...)
		}
	}
	return errs
}

// ownErrors runs the value's Validate method, if it has one under either receiver kind. The copy
// through reflect.New keeps pointer-receiver implementations reachable from plain values.
func ownErrors(val reflect.Value, path string) []error {
	ptr := reflect.New(val.Type())
	ptr.Elem().Set(val)
	validatable, ok := ptr.Interface().(Validatable)
	if !ok {
		return nil
	}

	var errs []error
	for _, err := range validatable.Validate() {
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "error found at %s", path))
		}
	}
	return errs
}

// Package check provides raw validation helpers and a reflection-driven walk
// that collects the validation errors of nested configuration values.
package check

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// True checks whether the condition is true. This method returns an error with the provided
// message if the check fails.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// Equal checks whether the arguments are equal (in the sense of reflect.DeepEqual). This method
// returns an error with the provided message if the check fails.
func Equal(actual, expected interface{}, msgAndArgs ...interface{}) error {
	return check(reflect.DeepEqual(actual, expected), msgAndArgs,
		"%v does not equal %v", actual, expected)
}

// NotEmpty checks whether the actual value is non-empty. This method returns an error with the
// provided message if the check fails.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(actual != "", msgAndArgs, "value must be non-empty")
}

// In checks whether the actual value is contained in the expected list. This method returns an
// error with the provided message if the check fails.
func In(actual string, expected []string, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in %v", actual, expected)
}

// GreaterThan checks whether the first argument is greater than the second. This method returns
// an error with the provided message if the check fails.
func GreaterThan[T constraints.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	return check(actual > expected, msgAndArgs, "%v is not greater than %v", actual, expected)
}

// GreaterThanOrEqualTo checks whether the first argument is greater than or equal to the second.
// This method returns an error with the provided message if the check fails.
func GreaterThanOrEqualTo[T constraints.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	return check(actual >= expected, msgAndArgs,
		"%v is not greater than or equal to %v", actual, expected)
}

// BetweenInclusive checks whether the actual value is between the lower and upper bounds,
// inclusive. This method returns an error with the provided message if the check fails.
func BetweenInclusive[T constraints.Ordered](actual, low, high T, msgAndArgs ...interface{}) error {
	return check(low <= actual && actual <= high, msgAndArgs,
		"%v is not between %v and %v", actual, low, high)
}

func check(result bool, msgAndArgs []interface{}, internalMsg string, internalArgs ...interface{}) error {
	if result {
		return nil
	}
	message := messageFromMsgAndArgs(msgAndArgs...)
	internal := fmt.Sprintf(internalMsg, internalArgs...)
	if message == "" {
		return errors.New(internal)
	}
	return errors.New(message + ": " + internal)
}

func messageFromMsgAndArgs(msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 1:
		if msg, ok := msgAndArgs[0].(string); ok {
			return msg
		}
		return fmt.Sprintf("%+v", msgAndArgs[0])
	case len(msgAndArgs) > 1:
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	default:
		return ""
	}
}

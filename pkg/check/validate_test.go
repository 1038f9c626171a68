package check

import (
	"testing"

	"gotest.tools/assert"
)

type valueReceiver struct {
	A bool
}

func (t valueReceiver) Validate() []error {
	return []error{
		True(t.A, "field A must be true"),
	}
}

type pointerReceiver struct {
	A bool
}

func (t *pointerReceiver) Validate() []error {
	return []error{
		True(t.A, "field A must be true"),
	}
}

func TestMethodSets(t *testing.T) {
	case1 := valueReceiver{A: false}
	case2 := pointerReceiver{A: false}

	err := Validate(case1)
	assert.ErrorContains(t, err, "error found at root: field A must be true: expected true, got false")
	err = Validate(&case1)
	assert.ErrorContains(t, err, "error found at root: field A must be true: expected true, got false")
	err = Validate(case2)
	assert.ErrorContains(t, err, "error found at root: field A must be true: expected true, got false")
	err = Validate(&case2)
	assert.ErrorContains(t, err, "error found at root: field A must be true: expected true, got false")
}

type inner struct {
	Port int
}

func (i inner) Validate() []error {
	return []error{
		BetweenInclusive(i.Port, 1, 65535, "port must be valid"),
	}
}

type outer struct {
	Name    string
	Inner   inner
	Extra   []inner
	ByLabel map[string]inner
}

func (o outer) Validate() []error {
	return []error{
		NotEmpty(o.Name, "name must be set"),
	}
}

func TestNestedValidation(t *testing.T) {
	ok := outer{
		Name:    "n1",
		Inner:   inner{Port: 80},
		Extra:   []inner{{Port: 443}},
		ByLabel: map[string]inner{"web": {Port: 8080}},
	}
	assert.NilError(t, Validate(ok))

	bad := outer{
		Inner:   inner{Port: 0},
		Extra:   []inner{{Port: 70000}},
		ByLabel: map[string]inner{"web": {Port: -1}},
	}
	err := Validate(bad)
	assert.ErrorContains(t, err, "error found at root: name must be set")
	assert.ErrorContains(t, err, "error found at root.Inner: port must be valid")
	assert.ErrorContains(t, err, "error found at root.Extra[0]: port must be valid")
	assert.ErrorContains(t, err, "error found at root.ByLabel[web]: port must be valid")
}

func TestHelpers(t *testing.T) {
	assert.NilError(t, Equal(3, 3))
	assert.ErrorContains(t, Equal(3, 4), "3 does not equal 4")

	assert.NilError(t, In("a", []string{"a", "b"}))
	assert.ErrorContains(t, In("c", []string{"a", "b"}), "c not in [a b]")

	assert.NilError(t, GreaterThan(2.5, 1.0))
	assert.ErrorContains(t, GreaterThan(1, 2), "1 is not greater than 2")

	assert.NilError(t, GreaterThanOrEqualTo(2, 2))
	assert.ErrorContains(t, GreaterThanOrEqualTo(1, 2), "1 is not greater than or equal to 2")
}

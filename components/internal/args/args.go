// Package args parses key=value instantiation arguments.
package args

import (
	"strconv"
	"strings"

	"github.com/wippyai/hal-runtime/errors"
)

// Set holds parsed arguments.
type Set map[string]string

// Parse splits each argument at the first '='. Unknown keys are rejected
// so typos fail the instantiation instead of being ignored.
func Parse(args []string, known ...string) (Set, error) {
	s := make(Set, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, errors.InvalidInput(errors.PhaseExport, "argument "+strconv.Quote(a)+" is not key=value")
		}
		found := false
		for _, name := range known {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New(errors.PhaseExport, errors.KindInvalidInput).
				Path(k).
				Want(strings.Join(known, ", ")).
				Detail("unknown argument").
				Build()
		}
		if _, dup := s[k]; dup {
			return nil, errors.Duplicate(errors.PhaseExport, "argument", k)
		}
		s[k] = v
	}
	return s, nil
}

// Int returns the integer value of key, or def when absent.
func (s Set) Int(key string, def, lo, hi int) (int, error) {
	v, ok := s[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseExport, errors.KindInvalidInput, err, key+"="+v)
	}
	if n < lo || n > hi {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).
			Path(key).
			Want(strconv.Itoa(lo) + ".." + strconv.Itoa(hi)).
			Got(v).
			Build()
	}
	return n, nil
}

// String returns the value of key, failing when it is absent and
// required.
func (s Set) String(key string, required bool) (string, error) {
	v, ok := s[key]
	if !ok && required {
		return "", errors.New(errors.PhaseExport, errors.KindInvalidInput).
			Path(key).
			Detail("argument is required").
			Build()
	}
	return v, nil
}

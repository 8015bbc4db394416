// Package models - Class order and display labels shared by training and inference.
package models

import (
	"github.com/pkg/errors"
)

// ErrInvalidClassSet is returned for an empty class list or duplicate names.
var ErrInvalidClassSet = errors.New("invalid class set")

// OutputClass represents one classifier output.
type OutputClass struct {
	// The integer index of the output position.
	Index int
	// The directory-style class name, e.g. "Potato___Early_blight".
	Name string
}

// ClassSet is the ordered list of classes. Position i of every label vector and
// every model output refers to Classes[i].
type ClassSet struct {
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewClassSet builds a class set from names in output order.
//
// Arguments:
//   - names: Class names, in the order the model emits them.
//
// Returns:
//   - *ClassSet: The validated class set.
//   - error: ErrInvalidClassSet if names is empty, has a blank entry or a duplicate.
func NewClassSet(names []string) (*ClassSet, error) {
	if len(names) == 0 {
		return nil, errors.Wrap(ErrInvalidClassSet, "no classes")
	}

	set := &ClassSet{
		Classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, errors.Wrapf(ErrInvalidClassSet, "class %d has an empty name", i)
		}
		if prev, ok := set.nameToIdx[name]; ok {
			return nil, errors.Wrapf(ErrInvalidClassSet, "class %q listed at %d and %d", name, prev, i)
		}
		set.Classes[i] = OutputClass{Index: i, Name: name}
		set.nameToIdx[name] = i
	}
	return set, nil
}

// Len returns the number of classes.
func (s *ClassSet) Len() int {
	return len(s.Classes)
}

// Names returns the class names in order.
func (s *ClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Name returns the class name for an output index.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("index %d out of range for %d classes", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}

// Index returns the output index of a class name.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("class %q not found", name)
	}
	return idx, nil
}

// Matches reports an error unless names lists exactly the same classes in the
// same order.
func (s *ClassSet) Matches(names []string) error {
	if len(names) != len(s.Classes) {
		return errors.Errorf("expected %d classes, got %d", len(s.Classes), len(names))
	}
	for i, name := range names {
		if s.Classes[i].Name != name {
			return errors.Errorf("class %d is %q, expected %q", i, name, s.Classes[i].Name)
		}
	}
	return nil
}

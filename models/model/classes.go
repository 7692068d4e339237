package model

import "github.com/pkg/errors"

// ClassSet is an ordered list of unique labels with lookup by name.
type ClassSet struct {
	names     []string
	nameToIdx map[string]int
}

// NewClassSet validates and indexes a label list.
//
// Arguments:
//   - names: The labels in model output order.
//
// Returns:
//   - ClassSet: The indexed set.
//   - error: An error if the list is empty or has blank or duplicate labels.
func NewClassSet(names []string) (ClassSet, error) {
	if len(names) == 0 {
		return ClassSet{}, errors.New("class list is empty")
	}

	set := ClassSet{
		names:     append([]string(nil), names...),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return ClassSet{}, errors.Errorf("class %d has an empty name", i)
		}
		if _, dup := set.nameToIdx[n]; dup {
			return ClassSet{}, errors.Errorf("duplicate class %q", n)
		}
		set.nameToIdx[n] = i
	}
	return set, nil
}

// Names returns a copy of the labels in output order.
func (s ClassSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of classes.
func (s ClassSet) Len() int {
	return len(s.names)
}

// Index returns the output index of a label.
func (s ClassSet) Index(name string) (int, bool) {
	idx, ok := s.nameToIdx[name]
	return idx, ok
}

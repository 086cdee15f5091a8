package rag

import "github.com/gamma-omg/contextqa/docstore"

// Setters maps a backend selector to its façade, so call sites never branch
// on backend type.
type Setters struct {
	setters map[docstore.Selector]*Setter
}

func NewSetters() *Setters {
	return &Setters{setters: make(map[docstore.Selector]*Setter)}
}

func (s *Setters) Register(sel docstore.Selector, setter *Setter) {
	s.setters[sel] = setter
}

func (s *Setters) For(sel docstore.Selector) (*Setter, error) {
	setter, ok := s.setters[sel]
	if !ok {
		_, err := docstore.ParseSelector(string(sel))
		if err == nil {
			err = errNotConfigured(sel)
		}
		return nil, err
	}

	return setter, nil
}

func errNotConfigured(sel docstore.Selector) error {
	return &NotConfiguredError{Selector: sel}
}

// NotConfiguredError reports a valid selector whose backend was not set up,
// for example a remote store without credentials.
type NotConfiguredError struct {
	Selector docstore.Selector
}

func (e *NotConfiguredError) Error() string {
	return "no backend configured for selector " + string(e.Selector)
}

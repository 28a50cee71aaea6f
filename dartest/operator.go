package dartest

import "github.com/dargo-project/dargo/operator"

// FakeOperator is an operator.Interaction implementation for tests: it
// answers every Pause with a fixed decision and records every message,
// the same role testhelper.FileImpl plays for backend.Storage in the
// teacher library.
type FakeOperator struct {
	PauseAnswer bool
	Secrets     []string
	Strings     []string

	Messages []string
	Pauses   []string

	secretIdx int
	stringIdx int
}

func (f *FakeOperator) Message(text string) {
	f.Messages = append(f.Messages, text)
}

func (f *FakeOperator) Pause(text string) bool {
	f.Pauses = append(f.Pauses, text)
	return f.PauseAnswer
}

func (f *FakeOperator) GetString(_ string, _ bool) (string, error) {
	if f.stringIdx >= len(f.Strings) {
		return "", nil
	}
	s := f.Strings[f.stringIdx]
	f.stringIdx++
	return s, nil
}

func (f *FakeOperator) GetSecret(_ string) (string, error) {
	if f.secretIdx >= len(f.Secrets) {
		return "", nil
	}
	s := f.Secrets[f.secretIdx]
	f.secretIdx++
	return s, nil
}

var _ operator.Interaction = (*FakeOperator)(nil)

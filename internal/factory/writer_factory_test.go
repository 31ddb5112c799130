package factory

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"errors"
	"testing"
)

type nopWriter struct {
	name   string
	closed *int
}

func (w *nopWriter) Name() string                    { return w.name }
func (w *nopWriter) WriteSample(*model.Sample) error { return nil }
func (w *nopWriter) Finish(*model.Report) error      { return nil }
func (w *nopWriter) Close() error {
	*w.closed++
	return nil
}

func TestCreate(t *testing.T) {
	closed := 0
	RegisterWriter("test-ok", func(env *Env, def config.WriterDef) (model.Writer, error) {
		return &nopWriter{name: env.SessionID, closed: &closed}, nil
	})
	RegisterWriter("test-fail", func(*Env, config.WriterDef) (model.Writer, error) {
		return nil, errors.New("no backend")
	})

	env := &Env{SessionID: "s1"}
	writers, err := Create(env, []config.WriterDef{
		{Type: "test-ok", Enabled: true},
		{Type: "test-fail", Enabled: false},
		{Type: "unknown", Enabled: false},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(writers) != 1 || writers[0].Name() != "s1" {
		t.Fatalf("unexpected writers %v", writers)
	}

	_, err = Create(env, []config.WriterDef{
		{Type: "test-ok", Enabled: true},
		{Type: "test-fail", Enabled: true},
	})
	if err == nil {
		t.Fatal("expected an error from the failing writer")
	}
	if closed != 1 {
		t.Errorf("expected the created writer to be closed, closed %d", closed)
	}

	if _, err := Create(env, []config.WriterDef{{Type: "unknown", Enabled: true}}); err == nil {
		t.Error("expected an error for an unknown type")
	}
}

func TestRegisterWriterTwicePanics(t *testing.T) {
	RegisterWriter("test-dup", func(*Env, config.WriterDef) (model.Writer, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on duplicate registration")
		}
	}()
	RegisterWriter("test-dup", func(*Env, config.WriterDef) (model.Writer, error) { return nil, nil })
}

package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoText(t *testing.T) {
	l := New(Config{})
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected default info level, got %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter by default, got %T", l.Formatter)
	}
}

func TestNewJSONFormat(t *testing.T) {
	l := New(Config{Level: "debug", Format: "json"})
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", l.Formatter)
	}
}

func TestWithFieldsReturnsEntry(t *testing.T) {
	l := NewDefault("test")
	entry := l.WithFields(logrus.Fields{"run": 1})
	if entry.Data["run"] != 1 {
		t.Fatalf("expected field to be set")
	}
}

package main

import (
	"os"
	"testing"
)

func TestMain_Help(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"volley", "--help"}
	if code := Main(); code != 0 {
		t.Errorf("Main() = %d, want 0", code)
	}
}

func TestMain_UnknownCommand(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"volley", "fire-everything"}
	if code := Main(); code != 1 {
		t.Errorf("Main() = %d, want 1", code)
	}
}

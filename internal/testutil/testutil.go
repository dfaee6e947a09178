// Package testutil collects small helpers shared by the indexer's test
// suites: a silent logger, temp-dir/CSV fixture builders, and a handful of
// generic assertion helpers predating the module's adoption of testify.
package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

// TempDataDir creates a fresh temp directory for a test's store path,
// spill file, and progress file, cleaned up automatically by t.Cleanup.
func TempDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "evmindexer-test-*")
	if err != nil {
		t.Fatalf("failed to create temp data dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// WriteCSVFixture writes header+rows as a comma-delimited CSV file under
// dir/name and returns its path, matching the column-contract fixtures
// exercised by the retriever's parsing tests.
func WriteCSVFixture(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv fixture %s: %v", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("failed to write csv header for %s: %v", name, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("failed to write csv row for %s: %v", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("failed to flush csv fixture %s: %v", name, err)
	}
	return path
}

// AssertNoError is a helper to assert that there is no error
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to assert that there is an error
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected error but got nil")
		}
	}
}

// AssertEqual is a helper to assert equality
func AssertEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected != actual {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected %v, got %v", msgAndArgs[0], expected, actual)
		} else {
			t.Fatalf("Expected %v, got %v", expected, actual)
		}
	}
}

// AssertNotEqual is a helper to assert inequality
func AssertNotEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == actual {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected not equal to %v, but got %v", msgAndArgs[0], expected, actual)
		} else {
			t.Fatalf("Expected not equal to %v, but got %v", expected, actual)
		}
	}
}

// AssertTrue is a helper to assert that a condition is true
func AssertTrue(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected true but got false", msgAndArgs[0])
		} else {
			t.Fatal("Expected true but got false")
		}
	}
}

// AssertFalse is a helper to assert that a condition is false
func AssertFalse(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected false but got true", msgAndArgs[0])
		} else {
			t.Fatal("Expected false but got true")
		}
	}
}

// AssertNil is a helper to assert that a value is nil
func AssertNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value != nil && !isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected nil but got %v", msgAndArgs[0], value)
		} else {
			t.Fatalf("Expected nil but got %v", value)
		}
	}
}

// isNil checks if a value is nil using reflection
// This is needed because interface{} != nil doesn't work for nil pointers
func isNil(value interface{}) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// AssertNotNil is a helper to assert that a value is not nil
func AssertNotNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value == nil || isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected not nil but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected not nil but got nil")
		}
	}
}

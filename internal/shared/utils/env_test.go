package utils

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("UTILS_TEST_VALUE", "present")
	t.Setenv("UTILS_TEST_EMPTY", "")

	if got := GetEnv("UTILS_TEST_VALUE", "fallback"); got != "present" {
		t.Errorf("GetEnv() = %q, want %q", got, "present")
	}
	if got := GetEnv("UTILS_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("GetEnv() on empty value = %q, want fallback", got)
	}
	if got := GetEnv("UTILS_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv() on missing value = %q, want fallback", got)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("UTILS_TEST_INT", "42")
	t.Setenv("UTILS_TEST_FLOAT", "2.5")
	t.Setenv("UTILS_TEST_BOOL", "true")
	t.Setenv("UTILS_TEST_DURATION", "20ms")
	t.Setenv("UTILS_TEST_BAD", "not-a-number")

	if got := GetEnvInt("UTILS_TEST_INT", 0); got != 42 {
		t.Errorf("GetEnvInt() = %d, want 42", got)
	}
	if got := GetEnvInt("UTILS_TEST_BAD", 7); got != 7 {
		t.Errorf("GetEnvInt() on bad value = %d, want 7", got)
	}
	if got := GetEnvInt64("UTILS_TEST_INT", 0); got != 42 {
		t.Errorf("GetEnvInt64() = %d, want 42", got)
	}
	if got := GetEnvFloat("UTILS_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("GetEnvFloat() = %v, want 2.5", got)
	}
	if got := GetEnvBool("UTILS_TEST_BOOL", false); !got {
		t.Error("GetEnvBool() = false, want true")
	}
	if got := GetEnvBool("UTILS_TEST_BAD", true); !got {
		t.Error("GetEnvBool() on bad value should return fallback")
	}
	if got := GetEnvDuration("UTILS_TEST_DURATION", time.Second); got != 20*time.Millisecond {
		t.Errorf("GetEnvDuration() = %v, want 20ms", got)
	}
}

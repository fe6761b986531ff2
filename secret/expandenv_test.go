package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("WEATHER_TEST_KEY", "k123")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"literal", "abc", "abc"},
		{"braces", "${WEATHER_TEST_KEY}", "k123"},
		{"bare", "key=$WEATHER_TEST_KEY", "key=k123"},
		{"dollar escape", "$$${WEATHER_TEST_KEY}", "$k123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExpandEnvStrict(tc.in)
			if err != nil {
				t.Fatalf("ExpandEnvStrict() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("ExpandEnvStrict() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	_, err := ExpandEnvStrict("a=${WEATHER_TEST_ZZ} b=${WEATHER_TEST_AA}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "WEATHER_TEST_AA, WEATHER_TEST_ZZ") {
		t.Errorf("missing names should be sorted: %v", err)
	}
}

func TestExpandStrict_CustomLookup(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "CITY" {
			return "London", true
		}
		return "", false
	}
	got, err := ExpandStrict("q=${CITY}", lookup)
	if err != nil || got != "q=London" {
		t.Errorf("ExpandStrict() = %q, %v", got, err)
	}
}

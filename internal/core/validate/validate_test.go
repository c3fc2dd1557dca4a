package validate

import (
	"errors"
	"testing"

	"github.com/vietddude/nftrelay/internal/core/failure"
)

func assertValidation(t *testing.T, err error) {
	t.Helper()
	var rec *failure.Record
	if !errors.As(err, &rec) {
		t.Fatalf("expected failure record, got %v", err)
	}
	if rec.Kind != failure.KindValidation || rec.Retryable {
		t.Errorf("expected non-retryable validation, got %+v", rec)
	}
}

func TestAddress(t *testing.T) {
	if _, err := Address("0x52908400098527886E0F7030069857D2E4169EE7"); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	for _, bad := range []string{
		"",
		"52908400098527886E0F7030069857D2E4169EE7",
		"0x1234",
		"0xZZ908400098527886E0F7030069857D2E4169EE7",
		"0x0000000000000000000000000000000000000000",
	} {
		_, err := Address(bad)
		assertValidation(t, err)
	}
}

func TestTokenID(t *testing.T) {
	n, err := TokenID("42")
	if err != nil || n.Int64() != 42 {
		t.Fatalf("TokenID(42) = %v, %v", n, err)
	}
	for _, bad := range []string{"", "-1", "abc", "1.5"} {
		_, err := TokenID(bad)
		assertValidation(t, err)
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		grade float64
		ok    bool
	}{
		{1, true},
		{9.5, true},
		{10, true},
		{0.5, false},
		{10.5, false},
		{7.3, false},
	}
	for _, tt := range tests {
		err := Grade(tt.grade)
		if tt.ok && err != nil {
			t.Errorf("Grade(%v) unexpected error %v", tt.grade, err)
		}
		if !tt.ok {
			assertValidation(t, err)
		}
	}
}

func TestScore(t *testing.T) {
	if err := Score(87.5); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	assertValidation(t, Score(-1))
	assertValidation(t, Score(100.01))
}

func TestPrice(t *testing.T) {
	p, err := Price("1000000000000000000")
	if err != nil || p.String() != "1000000000000000000" {
		t.Fatalf("Price = %v, %v", p, err)
	}
	for _, bad := range []string{"", "0", "-5", "1.5", "1e18", "ten"} {
		_, err := Price(bad)
		assertValidation(t, err)
	}
}

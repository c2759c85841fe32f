package services

import (
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"
)

func TestNextRequestRefFormat(t *testing.T) {
	db := newTestDB(t)
	refs := NewReferenceService(db)

	ref, err := refs.NextRequestRef(nil)
	if err != nil {
		t.Fatalf("NextRequestRef: %v", err)
	}

	pattern := regexp.MustCompile(`^DEM-\d{4}-\d{6}$`)
	if !pattern.MatchString(ref) {
		t.Errorf("reference %q does not match DEM-{year}-{6 digits}", ref)
	}

	want := fmt.Sprintf("DEM-%d-000001", time.Now().Year())
	if ref != want {
		t.Errorf("first reference = %q, want %q", ref, want)
	}
}

func TestNextRequestRefIncrements(t *testing.T) {
	db := newTestDB(t)
	refs := NewReferenceService(db)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		ref, err := refs.NextRequestRef(nil)
		if err != nil {
			t.Fatalf("NextRequestRef #%d: %v", i, err)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}

	last, _ := refs.NextRequestRef(nil)
	want := fmt.Sprintf("DEM-%d-000006", time.Now().Year())
	if last != want {
		t.Errorf("sixth reference = %q, want %q", last, want)
	}
}

func TestNextPurchaseRefFormat(t *testing.T) {
	db := newTestDB(t)
	refs := NewReferenceService(db)

	ref, err := refs.NextPurchaseRef(nil)
	if err != nil {
		t.Fatalf("NextPurchaseRef: %v", err)
	}

	want := fmt.Sprintf("PUR-%s-00001", time.Now().Format("20060102"))
	if ref != want {
		t.Errorf("purchase reference = %q, want %q", ref, want)
	}
}

func TestNextBusinessCodeScopedByPrefix(t *testing.T) {
	db := newTestDB(t)
	refs := NewReferenceService(db)

	first, err := refs.NextBusinessCode(nil, "FORM")
	if err != nil {
		t.Fatalf("NextBusinessCode: %v", err)
	}
	if first != "FORM001" {
		t.Errorf("first FORM code = %q, want FORM001", first)
	}

	second, _ := refs.NextBusinessCode(nil, "FORM")
	if second != "FORM002" {
		t.Errorf("second FORM code = %q, want FORM002", second)
	}

	// A different prefix runs its own counter
	prod, _ := refs.NextBusinessCode(nil, "PROD")
	if prod != "PROD001" {
		t.Errorf("first PROD code = %q, want PROD001", prod)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("UNIQUE constraint failed: requests.ref"), true},
		{errors.New(`duplicate key value violates unique constraint "idx_requests_ref" (SQLSTATE 23505)`), true},
		{errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Errorf("IsUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWithUniqueRetry(t *testing.T) {
	attempts := 0
	err := WithUniqueRetry(func(attempt int) error {
		attempts++
		if attempt < 2 {
			return errors.New("UNIQUE constraint failed: purchases.ref")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithUniqueRetry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	// A non-unique error is not retried
	attempts = 0
	sentinel := errors.New("connection refused")
	err = WithUniqueRetry(func(attempt int) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

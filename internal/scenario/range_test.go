package scenario

import (
	"reflect"
	"testing"
)

func TestSplitSteps(t *testing.T) {
	got, err := SplitSteps(4, 9, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []StepRange{
		{From: 4, To: 5},
		{From: 6, To: 7},
		{From: 8, To: 9},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitStepsUneven(t *testing.T) {
	got, err := SplitSteps(0, 6, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []StepRange{{From: 0, To: 3}, {From: 4, To: 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitStepsInvalid(t *testing.T) {
	if _, err := SplitSteps(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitSteps(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

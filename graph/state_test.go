package graph

import "testing"

func TestDeepCopyIsolatesSlices(t *testing.T) {
	original := testState{Visited: []string{"a", "b"}, Count: 2}

	copied, err := DeepCopy(original)
	if err != nil {
		t.Fatalf("DeepCopy failed: %v", err)
	}
	copied.Visited[0] = "mutated"
	copied.Count = 99

	if original.Visited[0] != "a" {
		t.Fatal("mutating the copy leaked into the original slice")
	}
	if original.Count != 2 {
		t.Fatal("mutating the copy leaked into the original scalar")
	}
}

func TestDeepCopyZeroValue(t *testing.T) {
	copied, err := DeepCopy(testState{})
	if err != nil {
		t.Fatalf("DeepCopy failed: %v", err)
	}
	if copied.Visited != nil || copied.Count != 0 {
		t.Fatalf("expected zero value, got %+v", copied)
	}
}

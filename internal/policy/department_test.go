package policy

import (
	"reflect"
	"testing"
)

func TestFilterByHierarchy(t *testing.T) {
	got := FilterByHierarchy("Eng", []string{"Eng", "Eng.Backend", "Engineering", "Sales"})
	want := []string{"Eng", "Eng.Backend"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterByHierarchy = %v, want %v", got, want)
	}
}

func TestFilterByHierarchyDeepNesting(t *testing.T) {
	got := FilterByHierarchy("Eng.Backend", []string{"Eng", "Eng.Backend", "Eng.Backend.API", "Eng.BackendOps"})
	want := []string{"Eng.Backend", "Eng.Backend.API"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterByHierarchy = %v, want %v", got, want)
	}
}

func TestFilterByHierarchyEmpty(t *testing.T) {
	if got := FilterByHierarchy("Eng", nil); len(got) != 0 {
		t.Fatalf("empty input must yield empty output, got %v", got)
	}
	if got := FilterByHierarchy("", []string{"Eng", ""}); len(got) != 0 {
		t.Fatalf("empty parent must match nothing, got %v", got)
	}
}

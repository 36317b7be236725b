package policy

import "strings"

// InDepartment reports whether candidate sits inside the parent
// department subtree. Departments are dot-separated: "Eng" contains
// "Eng" and "Eng.Backend" but not "Engineering". An empty parent
// contains nothing.
//
// This is a separate mechanism from the division field used by the
// project/task rules, which compares by exact equality only; department
// subtree matching applies solely to report-style access.
func InDepartment(parent, candidate string) bool {
	if parent == "" {
		return false
	}
	return candidate == parent || strings.HasPrefix(candidate, parent+".")
}

// FilterByHierarchy returns the candidates inside the parent department
// subtree, preserving input order. Empty input yields empty output.
func FilterByHierarchy(parent string, candidates []string) []string {
	matched := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if InDepartment(parent, c) {
			matched = append(matched, c)
		}
	}
	return matched
}

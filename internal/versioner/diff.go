package versioner

// Diff partitions the current tree against the previous version.
//
// An entry is copied when the previous version has no entry at the same
// relative path, or has one with an older modification time. An entry is
// linked whenever the previous version has it, whatever the copy decision.
// Change detection is by mtime only: a rewrite with identical content counts
// as a change and an edit that keeps the old mtime does not.
func Diff(current, previous []FileEntry) Plan {
	prev := make(map[string]FileEntry, len(previous))
	for _, e := range previous {
		prev[e.RelativePath] = e
	}

	var plan Plan
	for _, e := range current {
		old, ok := prev[e.RelativePath]
		if !ok || e.ModTime().After(old.ModTime()) {
			plan.ToCopy = append(plan.ToCopy, e)
		}
		if ok {
			plan.ToLink = append(plan.ToLink, e)
		}
	}
	return plan
}

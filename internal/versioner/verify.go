package versioner

import (
	"fmt"
	"sort"
	"sync"
)

// VerifyIssue is one problem found in a stored version.
type VerifyIssue struct {
	RelativePath string
	Problem      string
}

// VerifyReport summarises a Verify run.
type VerifyReport struct {
	VersionID string
	Checked   int
	Issues    []VerifyIssue
}

// OK reports whether the version verified cleanly.
func (r *VerifyReport) OK() bool {
	return len(r.Issues) == 0
}

// Verify re-hashes every copied file of a recorded version and checks that
// every link still resolves.
func (s *Service) Verify(versionID string) (*VerifyReport, error) {
	if s.database == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	version, err := s.database.FindVersion(versionID)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if version == nil {
		return nil, fmt.Errorf("version not recorded: %s", versionID)
	}
	entries, err := s.database.FindVersionEntries(versionID)
	if err != nil {
		return nil, fmt.Errorf("finding version entries: %w", err)
	}

	layout := Layout{BackupRoot: version.BackupRoot, VersionID: versionID}
	report := &VerifyReport{VersionID: versionID}

	var mu sync.Mutex
	addIssue := func(rel, problem string) {
		mu.Lock()
		defer mu.Unlock()
		report.Issues = append(report.Issues, VerifyIssue{RelativePath: rel, Problem: problem})
	}

	g := newGroup(s.opts.Workers)
	for _, e := range entries {
		switch e.Action {
		case ActionCopy:
			report.Checked++
			g.Go(func() error {
				f, err := s.fsys.Open(layout.Target(e.RelativePath))
				if err != nil {
					addIssue(e.RelativePath, fmt.Sprintf("missing: %v", err))
					return nil
				}
				defer f.Close()
				sum, err := Checksum(f)
				if err != nil {
					addIssue(e.RelativePath, fmt.Sprintf("unreadable: %v", err))
					return nil
				}
				if sum != e.Checksum {
					addIssue(e.RelativePath, fmt.Sprintf("checksum mismatch: recorded %s, found %s", e.Checksum, sum))
				}
				return nil
			})
		case ActionLink:
			report.Checked++
			g.Go(func() error {
				if _, err := s.fsys.Stat(layout.Target(e.RelativePath)); err != nil {
					addIssue(e.RelativePath, fmt.Sprintf("broken link: %v", err))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(report.Issues, func(i, j int) bool {
		return report.Issues[i].RelativePath < report.Issues[j].RelativePath
	})

	s.logger.Info("verify complete", "version", versionID, "checked", report.Checked, "issues", len(report.Issues))
	return report, nil
}

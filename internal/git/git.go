package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Status reports how biolock's local files relate to the git repository
// around them
type Status struct {
	IsRepo    bool
	Tracked   []string // Files committed to git (bad)
	Ignored   []string // Files in .gitignore (good)
	Unignored []string // Files neither tracked nor ignored (warning)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	err := cmd.Run()
	return err == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()

	if err != nil {
		return false
	}

	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir

	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// Check sorts files by their git state
func Check(workDir string, files []string) *Status {
	status := &Status{}

	if !IsGitRepo(workDir) {
		return status
	}
	status.IsRepo = true

	for _, file := range files {
		switch {
		case IsTracked(workDir, file):
			status.Tracked = append(status.Tracked, file)
		case IsIgnored(workDir, file):
			status.Ignored = append(status.Ignored, file)
		default:
			status.Unignored = append(status.Unignored, file)
		}
	}

	return status
}

// Format renders the status for display, empty outside a repository
func Format(status *Status) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")

	for _, file := range status.Tracked {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git (run: git rm --cached %s)\n", file, file))
	}
	for _, file := range status.Unignored {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore\n", file))
	}
	if len(status.Tracked) == 0 && len(status.Unignored) == 0 {
		result.WriteString("   ok: biolock files are ignored by git\n")
	}

	return result.String()
}

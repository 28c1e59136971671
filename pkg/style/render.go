package style

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/riceify/pkg/engine"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/snapshot"
	"github.com/charmbracelet/lipgloss"
)

// DisplayPath shortens paths under the home directory to ~/...
func DisplayPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return filepath.Join("~", rel)
	}
	return path
}

func actionStyle(a engine.Action) lipgloss.Style {
	switch a {
	case engine.ActionWritten, engine.ActionDeleted:
		return WrittenStyle
	case engine.ActionRestored:
		return RestoredStyle
	case engine.ActionStored:
		return StoredStyle
	case engine.ActionFailed:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

func verb(k engine.Kind) string {
	switch k {
	case engine.KindSave:
		return "saved"
	case engine.KindApply:
		return "applied"
	default:
		return "restored"
	}
}

// RenderResult summarizes a finished transaction. Unchanged and skipped
// files are listed only when verbose is set.
func RenderResult(res *engine.Result, verbose bool) string {
	if res == nil || res.Transaction == nil {
		return ""
	}
	tx := res.Transaction

	var b strings.Builder
	target := tx.Target
	if tx.Version > 0 {
		target = fmt.Sprintf("%s (v%d)", tx.Target, tx.Version)
	}

	switch {
	case tx.State == engine.StateDone && res.NoOp:
		fmt.Fprintf(&b, "%s %s: nothing to do\n", SuccessIndicator, Bold(target))
	case tx.State == engine.StateDone:
		fmt.Fprintf(&b, "%s %s %s in %s\n", SuccessIndicator, verb(tx.Kind), Bold(target), tx.Duration().Round(time.Millisecond))
	case tx.State == engine.StateRolledBack:
		fmt.Fprintf(&b, "%s %s was rolled back, no file was changed\n", WarningIndicator, Bold(target))
	default:
		fmt.Fprintf(&b, "%s %s %s\n", ErrorIndicator, Bold(target), ErrorStyle.Render(string(tx.State)))
	}

	for _, o := range tx.Outcomes {
		if !verbose && (o.Action == engine.ActionSkipped || o.Action == engine.ActionUnchanged) {
			continue
		}
		label := actionStyle(o.Action).Width(10).Render(string(o.Action))
		fmt.Fprintf(&b, "  %s %s\n", label, PathStyle.Render(DisplayPath(o.Path)))
	}
	return b.String()
}

// RenderProfiles lists saved profiles.
func RenderProfiles(profiles []snapshot.Summary) string {
	if len(profiles) == 0 {
		return MutedStyle.Render("No profiles saved yet.") + "\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Profiles:") + "\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "  %s %s %s\n",
			LabelStyle.Render(p.Name),
			fmt.Sprintf("v%-4d", p.Latest),
			MutedStyle.Render(fmt.Sprintf("%d files, saved %s", p.Files, p.CreatedAt.Local().Format(time.DateTime))))
	}
	return b.String()
}

// RenderCacheStatus prints the cache counters as label/value lines.
func RenderCacheStatus(st engine.CacheStatus) string {
	var b strings.Builder
	line := func(label string, value interface{}) {
		fmt.Fprintf(&b, "  %s %v\n", LabelStyle.Render(label), value)
	}

	b.WriteString(TitleStyle.Render("Hash cache") + "\n")
	line("location", PathStyle.Render(DisplayPath(st.Hashes.Path)))
	line("algorithm", st.Hashes.Algo)
	line("entries", st.Hashes.Entries)
	line("invalid", st.Hashes.Invalid)
	line("corrupt lines", st.Hashes.Corrupt)
	line("hits", st.Hashes.Hits)
	line("misses", st.Hashes.Misses)

	b.WriteString(TitleStyle.Render("Content cache") + "\n")
	line("entries", st.Content.Entries)
	line("bytes", fmt.Sprintf("%d / %d", st.Content.Bytes, st.Content.Capacity))
	line("workers", st.Workers)
	line("dropped events", st.DroppedEvents)
	return b.String()
}

// RenderError formats err for stderr, listing the paths it names.
func RenderError(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ErrorStyle.Render("Error: "+err.Error()) + "\n")

	paths := errors.GetErrorPaths(err)
	if len(paths) == 0 {
		return b.String()
	}
	heading := "Affected files:"
	if errors.IsErrorCode(err, errors.ErrRollbackIncomplete) {
		heading = "These files could not be restored and need manual attention:"
	}
	b.WriteString(WarningStyle.Render(heading) + "\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "  %s %s\n", ErrorIndicator, PathStyle.Render(DisplayPath(p)))
	}
	return b.String()
}

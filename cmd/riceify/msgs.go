package riceify

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort        = "Atomic switching between configuration profiles"
	MsgSaveShort        = "Save the tracked files of a profile as a new version"
	MsgApplyShort       = "Make a saved profile live"
	MsgRestoreShort     = "Undo the last apply or restore"
	MsgListShort        = "List saved profiles"
	MsgDeleteShort      = "Delete every saved version of a profile"
	MsgCacheStatusShort = "Show hash cache and content cache counters"
	MsgClearCacheShort  = "Drop every hash cache entry"
	MsgVersionShort     = "Print version information"
	MsgCompletionShort  = "Generate shell completion script"

	// Status messages
	MsgProfileDeleted = "Deleted profile '%s'\n"
	MsgCacheCleared   = "Hash cache cleared\n"
	MsgVersionFormat  = "riceify version %s\n  commit: %s\n  built:  %s\n"

	// Error messages
	MsgErrInitPaths    = "failed to initialize paths: %w"
	MsgErrOutputFormat = "unknown output format %q (want text, json or yaml)"
	MsgErrNoCommand    = "no command specified"
	MsgErrEncodeOutput = "failed to encode output: %w"

	// Flag descriptions
	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig  = "Configuration file (default is $XDG_CONFIG_HOME/riceify/riceify.toml)"
	MsgFlagRoot    = "Keep every riceify directory under this root instead of the XDG locations"
	MsgFlagOutput  = "Output format: text, json or yaml"
	MsgFlagAll     = "Also list files that were left unchanged"
)

// Long messages loaded from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/save-long.txt
	msgSaveLongRaw string
	MsgSaveLong    = strings.TrimSpace(msgSaveLongRaw)

	//go:embed msgs/apply-long.txt
	msgApplyLongRaw string
	MsgApplyLong    = strings.TrimSpace(msgApplyLongRaw)

	//go:embed msgs/restore-long.txt
	msgRestoreLongRaw string
	MsgRestoreLong    = strings.TrimSpace(msgRestoreLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)

package watcher

import (
	"path"
	"strings"
)

// PartialPrefix marks in-flight downloads. It matches the temporary file
// pattern so neither watcher ever picks a partial file up.
const PartialPrefix = ".~ftpsync."

const partialSuffix = ".part"

// windowsIllegal are the characters a remote name may carry that cannot
// exist in a Windows file name.
const windowsIllegal = `\/:?"<>|*`

// IsTemporary reports whether the base name of p belongs to an editor or
// lock artifact that is never synchronized.
func IsTemporary(p string) bool {
	name := path.Base(strings.ReplaceAll(p, `\`, "/"))
	switch {
	case strings.HasPrefix(name, "~$"):
		return true
	case strings.HasPrefix(name, ".~"):
		return true
	case strings.HasPrefix(name, "~") && strings.HasSuffix(name, ".tmp"):
		return true
	}
	return false
}

// PartialName returns the in-flight download name for base.
func PartialName(base string) string {
	return PartialPrefix + base + partialSuffix
}

func isPartial(base string) bool {
	return strings.HasPrefix(base, PartialPrefix) && strings.HasSuffix(base, partialSuffix)
}

// unsupportedName reports why a remote name cannot be created on goos.
func unsupportedName(name, goos string) (string, bool) {
	if goos != "windows" {
		return "", false
	}
	if i := strings.IndexAny(name, windowsIllegal); i >= 0 {
		return "contains character " + string(name[i]) + " which is not allowed locally", true
	}
	return "", false
}

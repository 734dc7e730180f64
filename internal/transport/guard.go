package transport

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
)

// shellMetaCharacters are rejected anywhere in a stdio upstream's command
// path — none of them are ever interpreted, since arguments are always
// passed as an argv array and no shell is invoked, but their presence in a
// configured command is a strong signal of a misconfigured or malicious
// upstream definition.
const shellMetaCharacters = "|&;$`(){}<>\r\n"

var knownShells = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "fish": {}, "ksh": {}, "csh": {}, "dash": {}, "ash": {},
}

// ValidateCommand rejects a stdio upstream's command path when it
// contains a shell metacharacter or when its basename matches a known
// shell. Arguments themselves are never validated here — they are passed
// to exec.Cmd as an argv array, never through a shell, so they cannot be
// used to inject additional commands regardless of content.
func ValidateCommand(path string) error {
	if strings.ContainsAny(path, shellMetaCharacters) {
		return apperr.NewTransportError(apperr.TransportCommandInjection, fmt.Sprintf("command path %q contains a shell metacharacter", path))
	}
	base := filepath.Base(path)
	if _, isShell := knownShells[base]; isShell {
		return apperr.NewTransportError(apperr.TransportCommandInjection, fmt.Sprintf("command %q is a shell interpreter, not an upstream server", base))
	}
	return nil
}

// Package joinqueue drives rate-limited group joins from invite links,
// recording tri-state outcomes per job.
package joinqueue

import "regexp"

// invitePattern matches the invite code segment of a group invitation link.
var invitePattern = regexp.MustCompile(`chat\.whatsapp\.com/(?:invite/)?([A-Za-z0-9_-]+)`)

// ExtractInviteCode pulls the invite code out of a link. The second return
// is false when the link carries no recognizable code.
func ExtractInviteCode(link string) (string, bool) {
	m := invitePattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

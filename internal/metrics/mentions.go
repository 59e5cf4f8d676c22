package metrics

import "regexp"

// mentionPattern matches Discord mention tokens: <@123> and <@!123>.
var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// ParseMentions returns every mentioned user id in content, in order of
// appearance, one entry per token. Duplicate tokens produce duplicate entries.
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// distinctMentions returns mentioned ids with duplicates removed, first
// occurrence order preserved.
func distinctMentions(content string) []string {
	all := ParseMentions(content)
	if len(all) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

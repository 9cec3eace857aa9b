package tui

import (
	"regexp"
	"sort"
	"strings"

	"taskdesk/backend"
)

var (
	tagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_-]+)`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// tagsIn returns the distinct #tags of text, lowercased, in order of appearance
func tagsIn(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// allTags collects the tags used across tasks, sorted
func allTags(tasks []backend.Task) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range tasks {
		for _, tag := range tagsIn(t.Description) {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// normalizeTag strips the leading # and surrounding space
func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	return strings.ToLower(strings.Join(strings.Fields(tag), "-"))
}

// hasTag reports whether text carries #tag
func hasTag(text, tag string) bool {
	for _, t := range tagsIn(text) {
		if t == tag {
			return true
		}
	}
	return false
}

// toggleTag appends #tag to text, or removes every occurrence when present
func toggleTag(text, tag string) string {
	if !hasTag(text, tag) {
		text = strings.TrimRight(text, " ")
		if text != "" {
			text += " "
		}
		return text + "#" + tag
	}

	tagRe := regexp.MustCompile(`(?i)(^|\s)#` + regexp.QuoteMeta(tag) + `([^\p{L}\p{N}_-]|$)`)
	for tagRe.MatchString(text) {
		text = tagRe.ReplaceAllString(text, "$1$2")
	}
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// filteredTags returns the known tags matching the panel's search input
func (m *Model) filteredTags() []string {
	query := normalizeTag(m.tagInput.Value())
	var out []string
	for _, tag := range allTags(m.tasks) {
		if query == "" || strings.Contains(tag, query) {
			out = append(out, tag)
		}
	}
	return out
}

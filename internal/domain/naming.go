package domain

import (
	"strings"
	"unicode"
)

// PartitionPrefix is prepended to every partition key.
const PartitionPrefix = "results_"

const guestPartition = "guest"

// PartitionKey normalizes a display name: lowercase, every run of characters
// outside [a-z0-9] becomes one underscore, leading/trailing underscores trimmed.
func PartitionKey(displayName string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// PartitionName resolves the partition holding a user's attempts.
func PartitionName(displayName string) string {
	key := PartitionKey(displayName)
	if key == "" {
		key = guestPartition
	}
	return PartitionPrefix + key
}

// TopicSlug turns a topic title into its URL-safe form ("C Programming" -> "c_programming").
func TopicSlug(topic string) string {
	fields := strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	return strings.Join(fields, "_")
}

// FormatTopic renders a slug for display ("c_programming" -> "C Programming").
func FormatTopic(slug string) string {
	words := strings.Split(TopicSlug(slug), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

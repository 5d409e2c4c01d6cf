package builder

import (
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/translator-release/internal/config"
)

// timestampLayout is the UTC timestamp format used in generated ids.
const timestampLayout = "20060102150405"

// AllocateID picks the release id: explicit override, then tag, then
// latest-<timestamp>. An id already held by a pointer gets a timestamp
// suffix, then a counter, so a referenced directory is never rebuilt.
func AllocateID(override, tag string, now time.Time, referenced map[string]struct{}) string {
	stamp := now.UTC().Format(timestampLayout)

	id := sanitizeID(override)
	if id == "" && tag != config.TagLatest {
		id = sanitizeID(tag)
	}

	if id == "" {
		id = config.TagLatest + "-" + stamp
	}

	if _, taken := referenced[id]; !taken {
		return id
	}

	base := id + "-" + stamp
	id = base

	for n := 2; ; n++ {
		if _, taken := referenced[id]; !taken {
			return id
		}

		id = base + "-" + strconv.Itoa(n)
	}
}

// sanitizeID keeps ids usable as a single path element.
func sanitizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "." || raw == ".." {
		return ""
	}

	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}

		return r
	}, raw)
}

package compose

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chatcart/chatcart/internal/provider"
)

// Reply is the validated outcome of one completion, ready for delivery.
type Reply struct {
	Text      string
	Citations []int // 1-based indexes into the facts presented at composition
}

// citationMarker matches [n] markers embedded in plain-text replies.
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ParseReply validates a provider response. Structured output is preferred
// when present; malformed structured payloads fall back to the plain-text
// parse path so the router stays capability-agnostic. Only when both paths
// produce nothing does the reply count as malformed — the router then
// treats that provider as failed and continues failover.
func ParseReply(resp *provider.Response) (Reply, error) {
	if resp == nil {
		return Reply{}, fmt.Errorf("%w: nil response", provider.ErrMalformedOutput)
	}

	if len(resp.Structured) > 0 {
		var structured provider.StructuredReply
		if err := json.Unmarshal(resp.Structured, &structured); err == nil {
			if text := strings.TrimSpace(structured.Text); text != "" {
				return Reply{Text: text, Citations: dedupCitations(structured.Citations)}, nil
			}
		}
		// Fall through to the text path.
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: empty reply from %s", provider.ErrMalformedOutput, resp.Provider)
	}

	var citations []int
	for _, m := range citationMarker.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			citations = append(citations, n)
		}
	}
	return Reply{Text: text, Citations: dedupCitations(citations)}, nil
}

// dedupCitations drops duplicates and non-positive indexes, preserving
// first-seen order.
func dedupCitations(citations []int) []int {
	seen := make(map[int]bool, len(citations))
	var out []int
	for _, n := range citations {
		if n > 0 && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

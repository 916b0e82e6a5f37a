package subscription

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/exchangecollector/core/pkg/errkind"
)

// namePattern is the generic StreamName shape:
// ^[a-z0-9]+@[a-z0-9_]+(@[0-9]+ms)?$
var namePattern = regexp.MustCompile(`^[a-z0-9]+@[a-z0-9_]+(@[0-9]+ms)?$`)

// ValidStreamName reports whether name matches StreamName regex.
func ValidStreamName(name StreamName) bool {
	return namePattern.MatchString(string(name))
}

// URLOptions configures BuildCombinedStreamURL.
type URLOptions struct {
	MaxStreams int // default 1024
	// ComponentEncode, when true, percent-encodes each stream name as a
	// URL path component instead of joining them verbatim. Binance's
	// own combined-stream URLs use raw, unencoded names, so
	// this defaults to false.
	ComponentEncode bool
}

// DefaultURLOptions returns default tunables.
func DefaultURLOptions() URLOptions {
	return URLOptions{MaxStreams: 1024}
}

// BuildCombinedStreamURL builds a combined-stream URL from streams and baseURL:
//   - rejects an empty input with InvalidArgument
//   - rejects names that don't match the StreamName regex with InvalidArgument
//   - deduplicates while preserving first-seen order
//   - rejects a deduplicated size over opts.MaxStreams with TooManyStreams
//   - strips a trailing "/" from baseURL before joining
//   - produces "<baseUrl>/stream?streams=s1/s2/..."
func BuildCombinedStreamURL(streams []StreamName, baseURL string, opts URLOptions) (string, error) {
	const op = "subscription.BuildCombinedStreamURL"

	if len(streams) == 0 {
		return "", errkind.New(errkind.InvalidArgument, op, "streams must not be empty")
	}

	if opts.MaxStreams <= 0 {
		opts.MaxStreams = DefaultURLOptions().MaxStreams
	}

	seen := make(map[StreamName]struct{}, len(streams))
	deduped := make([]StreamName, 0, len(streams))
	for _, s := range streams {
		if !ValidStreamName(s) {
			return "", errkind.New(errkind.InvalidArgument, op, fmt.Sprintf("invalid stream name %q", s))
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		deduped = append(deduped, s)
	}

	if len(deduped) > opts.MaxStreams {
		return "", errkind.New(errkind.TooManyStreams, op,
			fmt.Sprintf("%d streams exceeds max of %d", len(deduped), opts.MaxStreams))
	}

	base := strings.TrimSuffix(baseURL, "/")

	parts := make([]string, len(deduped))
	for i, s := range deduped {
		if opts.ComponentEncode {
			parts[i] = url.PathEscape(string(s))
		} else {
			parts[i] = string(s)
		}
	}

	return fmt.Sprintf("%s/stream?streams=%s", base, strings.Join(parts, "/")), nil
}

package address

import (
	"log/slog"
	"regexp"
	"strings"
)

// Approximates RFC 5322 addr-spec: dot-atom local part, hostname labels.
// The apostrophe is a legal atext character, which is why quoted header
// fragments can surface as addresses starting with "'".
const (
	atext     = "[a-z0-9!#$%&'*+/=?^_`{|}~-]"
	localPart = atext + "+(?:\\." + atext + "+)*"
	hostLabel = `[a-z0-9](?:[a-z0-9-]*[a-z0-9])?`
	hostPart  = `(?:` + hostLabel + `\.)+` + hostLabel
)

var addressPattern = regexp.MustCompile(`(?i)` + localPart + `@` + hostPart)

// Raw is an address/name pair as it comes from the provider. Either field may
// hold several concatenated, possibly malformed addresses.
type Raw struct {
	Address string
	Name    string
}

// Resolved is a cleaned address/name pair with a syntactically valid address.
type Resolved struct {
	Address string
	Name    string
}

// Resolver extracts canonical pairs from raw header values
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver that reports unresolvable input to logger
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default().With("component", "address")
	}
	return &Resolver{logger: logger}
}

// Resolve returns every address found in raw, de-duplicated.
//
// When only the address field matches exactly once, the original name is
// kept. In every other case a match cannot be tied to a name reliably, so the
// address doubles as its own display name.
func (r *Resolver) Resolve(raw Raw) []Resolved {
	fromAddress := addressPattern.FindAllString(raw.Address, -1)
	fromName := addressPattern.FindAllString(raw.Name, -1)

	var resolved []Resolved
	switch {
	case len(fromAddress) > 0 && len(fromName) > 0:
		resolved = selfNamed(append(fromAddress, fromName...))
	case len(fromAddress) == 1:
		resolved = []Resolved{{Address: fromAddress[0], Name: raw.Name}}
	case len(fromAddress) > 1:
		resolved = selfNamed(fromAddress)
	case len(fromName) > 0:
		resolved = selfNamed(fromName)
	default:
		r.logger.Warn("could not resolve email address",
			"address", raw.Address,
			"name", raw.Name,
		)
		return nil
	}

	return dedupe(dropQuoted(resolved))
}

// Resolve uses a resolver logging to slog.Default()
func Resolve(raw Raw) []Resolved {
	return NewResolver(nil).Resolve(raw)
}

// Domain derives the registrable domain of an address as the last two labels
// of its host, lower-cased. Multi-label public suffixes are not special-cased:
// "someone@foo.co.uk" yields "co.uk". Returns false when there is no host part.
func Domain(address string) (string, bool) {
	parts := strings.Split(address, "@")
	if len(parts) < 2 {
		return "", false
	}

	host := strings.Trim(parts[1], ". ")
	if host == "" {
		return "", false
	}

	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		labels = labels[len(labels)-2:]
	}
	return strings.ToLower(strings.Join(labels, ".")), true
}

func selfNamed(matches []string) []Resolved {
	out := make([]Resolved, 0, len(matches))
	for _, m := range matches {
		out = append(out, Resolved{Address: m, Name: m})
	}
	return out
}

func dropQuoted(in []Resolved) []Resolved {
	out := in[:0]
	for _, r := range in {
		if strings.HasPrefix(r.Address, "'") {
			continue
		}
		out = append(out, r)
	}
	return out
}

func dedupe(in []Resolved) []Resolved {
	seen := make(map[Resolved]struct{}, len(in))
	out := make([]Resolved, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

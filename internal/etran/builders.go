package etran

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ValidationError marks a query string that a builder could not turn into
// an upstream request body, distinct from transport or decode errors so C4
// can disposition it deterministically without inspecting error text.
type ValidationError struct {
	TypeID int
	Query  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("etran: invalid query for type %d (%q): %s", e.TypeID, e.Query, e.Reason)
}

// Builder turns a caller-supplied query string into the unescaped inner XML
// body that goes inside <Text> once wrapped by buildEnvelope. gzip carries
// the configured ETRAN_GZIP flag through to the handful of templates that
// request a gzip+base64-encoded reply.
type Builder func(query string, gzip bool) (string, error)

// builders is the type_id -> Builder dispatch table. 101 is intentionally
// absent: the source system once registered both 101 and 102 for the same
// reference-lookup request and only 102 survived.
var builders = map[int]Builder{
	1:   buildTrainIndex,
	2:   buildWagonBatch,
	3:   buildStationLookup,
	102: buildReferenceLookup,
}

// Build dispatches query to the builder registered for typeID and wraps its
// result in the login/password envelope. gzip is the configured ETRAN_GZIP
// flag; builders whose replies can be usefully gzip+base64-encoded inject
// <UseGZIPBinary>1</UseGZIPBinary> into their request body when it is set.
func Build(typeID int, query, login, password string, gzip bool) (string, error) {
	b, ok := builders[typeID]
	if !ok {
		return "", &ValidationError{TypeID: typeID, Query: query, Reason: "unknown type_id"}
	}
	inner, err := b(query, gzip)
	if err != nil {
		return "", err
	}
	return buildEnvelope(login, password, inner), nil
}

// gzipElement renders the <UseGZIPBinary> toggle to inject into a request
// body, or the empty string when gzip replies were not requested.
func gzipElement(gzip bool) string {
	if !gzip {
		return ""
	}
	return "<UseGZIPBinary>1</UseGZIPBinary>"
}

var (
	trainIndexSplit = regexp.MustCompile(`^(\d{5})\D(\d{3})\D(\d{5})$`)
	trainIndexPlain = regexp.MustCompile(`^\d{15}$`)
)

// buildTrainIndex implements request type SPP4700 (train index lookup). The
// query is either "NNNNN-NNN-NNNNN" (any non-digit separator), where the two
// 5-digit groups are code6-normalized and the middle 3-digit group passes
// through verbatim, or a bare 15-digit string, which passes through
// unmodified (it is already a complete train index, not two halves needing
// a check digit).
func buildTrainIndex(query string, gzip bool) (string, error) {
	if m := trainIndexSplit.FindStringSubmatch(query); m != nil {
		n1, err1 := strconv.Atoi(m[1])
		n2, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			return "", &ValidationError{TypeID: 1, Query: query, Reason: "non-numeric index"}
		}
		return fmt.Sprintf("<SPP4700><TrainIndex>%s%s%s</TrainIndex></SPP4700>", code6(n1), m[2], code6(n2)), nil
	}

	if trainIndexPlain.MatchString(query) {
		return fmt.Sprintf("<SPP4700><TrainIndex>%s</TrainIndex></SPP4700>", query), nil
	}

	return "", &ValidationError{TypeID: 1, Query: query, Reason: "expected NNNNN-NNN-NNNNN or 15 digits"}
}

var wagonPattern = regexp.MustCompile(`^\d{8}$`)

// buildWagonBatch implements request type SPP4701: a comma-separated list
// of distinct 8-digit wagon numbers, order preserved. A batch reply can run
// large, so this is one of the templates ETRAN_GZIP applies to.
func buildWagonBatch(query string, gzip bool) (string, error) {
	parts := strings.Split(query, ",")
	seen := make(map[string]struct{}, len(parts))
	var b strings.Builder
	b.WriteString("<SPP4701>")
	b.WriteString(gzipElement(gzip))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !wagonPattern.MatchString(p) {
			return "", &ValidationError{TypeID: 2, Query: query, Reason: "expected comma-separated 8-digit wagon numbers"}
		}
		if _, dup := seen[p]; dup {
			return "", &ValidationError{TypeID: 2, Query: query, Reason: "duplicate wagon number " + p}
		}
		seen[p] = struct{}{}
		fmt.Fprintf(&b, "<Wagon>%s</Wagon>", p)
	}
	b.WriteString("</SPP4701>")
	return b.String(), nil
}

var stationPattern = regexp.MustCompile(`^\d{5}$`)

// buildStationLookup implements request type SPP4702: a single 5-digit
// station code, code6-normalized like the train index halves.
func buildStationLookup(query string, gzip bool) (string, error) {
	if !stationPattern.MatchString(query) {
		return "", &ValidationError{TypeID: 3, Query: query, Reason: "expected 5-digit station code"}
	}
	n, err := strconv.Atoi(query)
	if err != nil {
		return "", &ValidationError{TypeID: 3, Query: query, Reason: "non-numeric station code"}
	}
	return fmt.Sprintf("<SPP4702><Station>%s</Station></SPP4702>", code6(n)), nil
}

var referenceKnownKeys = map[string]struct{}{
	"region": {},
	"road":   {},
	"date":   {},
}

// buildReferenceLookup implements request type NSI4700: ';'-separated
// key=value pairs drawn from a known key set, emitted sorted by key for a
// deterministic wire body. Reference tables are the other template
// ETRAN_GZIP applies to.
func buildReferenceLookup(query string, gzip bool) (string, error) {
	pairs := strings.Split(query, ";")
	kv := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return "", &ValidationError{TypeID: 102, Query: query, Reason: "expected key=value pairs"}
		}
		k = strings.TrimSpace(k)
		if _, known := referenceKnownKeys[k]; !known {
			return "", &ValidationError{TypeID: 102, Query: query, Reason: "unknown key " + k}
		}
		kv[k] = strings.TrimSpace(v)
	}
	if len(kv) == 0 {
		return "", &ValidationError{TypeID: 102, Query: query, Reason: "no key=value pairs supplied"}
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<NSI4700>")
	b.WriteString(gzipElement(gzip))
	for _, k := range keys {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, XMLEscape(kv[k]), k)
	}
	b.WriteString("</NSI4700>")
	return b.String(), nil
}

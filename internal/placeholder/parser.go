package placeholder

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	prefixPattern  = regexp.MustCompile(`(?i)^(CreditSum|DebitSum|BegSum|Sum)(\d)_(.+)_(CY|PY)$`)
	accountPattern = regexp.MustCompile(`(?i)^([A-Z0-9]+)`)
	formPattern    = regexp.MustCompile(`(?i)^(?:(description)_([A-Z0-9]+)_(CY)|([A-Z0-9]+)(?:_(debit|credit|Jan1))?_(CY|PY))$`)
)

// RefKind classifies a parsed template key.
type RefKind int

const (
	RefAccount RefKind = iota + 1
	RefPrefix
)

// Form tells which figure an account reference reads.
type Form int

const (
	// FormOther is a key whose leading run names an account but whose shape is not a
	// data token (metadata, derived lines with extra suffixes, ...).
	FormOther Form = iota
	FormEnding
	FormDebit
	FormCredit
	FormBeginning
	FormDescription
)

// Reference is one classified template key.
type Reference struct {
	Token    string
	Kind     RefKind
	Account  string
	Form     Form
	Metric   Metric
	Level    int
	Prefix   string
	YearType YearType

	// DescriptionAccount is the account a description_<ACCOUNT>_CY key describes;
	// Account keeps the leading alphanumeric run of the key.
	DescriptionAccount string
}

// Canonical returns the token under which the pipeline stores this reference's value.
func (r Reference) Canonical() string {
	switch r.Kind {
	case RefPrefix:
		return SummaryKey(r.Metric, r.Level, r.Prefix, r.YearType)
	case RefAccount:
		switch r.Form {
		case FormEnding:
			return EndingKey(r.Account, r.YearType)
		case FormDebit:
			return DebitKey(r.Account, r.YearType)
		case FormCredit:
			return CreditKey(r.Account, r.YearType)
		case FormBeginning:
			return BeginningKey(r.Account, r.YearType)
		case FormDescription:
			return DescriptionKey(r.DescriptionAccount)
		}
	}
	return r.Token
}

// IsData reports whether the reference names a ledger figure that defaults to zero
// when no data exists.
func (r Reference) IsData() bool {
	return r.Kind == RefPrefix || r.Form != FormOther
}

// Requirements is the set of raw data a template consumes.
type Requirements struct {
	Accounts   map[string]struct{}
	Prefixes   map[int]map[string]struct{}
	References []Reference
	// Rejected lists prefix-shaped keys with an unsupported level or prefix length.
	Rejected []string
}

// HasAccount reports whether an exact account is required.
func (r Requirements) HasAccount(id string) bool {
	_, ok := r.Accounts[strings.ToUpper(id)]
	return ok
}

// Levels returns the registered prefix levels in ascending order.
func (r Requirements) Levels() []int {
	levels := make([]int, 0, len(r.Prefixes))
	for l := range r.Prefixes {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

// ParseKeys classifies template keys. Keys may be wrapped in {{ }} or bare; keys
// matching neither grammar are ignored.
func ParseKeys(keys []string) Requirements {
	req := Requirements{
		Accounts: make(map[string]struct{}),
		Prefixes: make(map[int]map[string]struct{}),
	}
	seen := make(map[string]struct{}, len(keys))
	for _, raw := range keys {
		token := tokenOf(strings.TrimSpace(raw))
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		ref, ok, rejected := Classify(token)
		if rejected {
			req.Rejected = append(req.Rejected, token)
			continue
		}
		if !ok {
			continue
		}
		switch ref.Kind {
		case RefPrefix:
			set, exists := req.Prefixes[ref.Level]
			if !exists {
				set = make(map[string]struct{})
				req.Prefixes[ref.Level] = set
			}
			set[ref.Prefix] = struct{}{}
		case RefAccount:
			if ref.Form == FormDescription {
				req.Accounts[ref.DescriptionAccount] = struct{}{}
			} else {
				req.Accounts[ref.Account] = struct{}{}
			}
		}
		req.References = append(req.References, ref)
	}
	sort.Slice(req.References, func(i, j int) bool { return req.References[i].Token < req.References[j].Token })
	sort.Strings(req.Rejected)
	return req
}

// Classify parses a single key. rejected is set for prefix-shaped keys whose level
// is outside 1..MaxPrefixLevel or whose prefix length differs from the level.
func Classify(keyOrToken string) (ref Reference, ok bool, rejected bool) {
	token := tokenOf(strings.TrimSpace(keyOrToken))
	key := Unwrap(token)
	if m := prefixPattern.FindStringSubmatch(key); m != nil {
		metric, _ := MetricFromLabel(m[1])
		level, _ := strconv.Atoi(m[2])
		prefix := strings.ToUpper(m[3])
		yt, _ := ParseYearType(m[4])
		if level < 1 || level > MaxPrefixLevel || len([]rune(prefix)) != level {
			return Reference{}, false, true
		}
		return Reference{Token: token, Kind: RefPrefix, Metric: metric, Level: level, Prefix: prefix, YearType: yt}, true, false
	}
	m := accountPattern.FindStringSubmatch(key)
	if m == nil {
		return Reference{}, false, false
	}
	ref = Reference{Token: token, Kind: RefAccount, Account: strings.ToUpper(m[1])}
	if f := formPattern.FindStringSubmatch(key); f != nil {
		if f[1] != "" {
			ref.Form = FormDescription
			ref.YearType = CY
			ref.DescriptionAccount = strings.ToUpper(f[2])
		} else {
			ref.YearType, _ = ParseYearType(f[6])
			switch strings.ToLower(f[5]) {
			case "":
				ref.Form = FormEnding
			case "debit":
				ref.Form = FormDebit
			case "credit":
				ref.Form = FormCredit
			case "jan1":
				ref.Form = FormBeginning
			}
		}
	}
	return ref, true, false
}

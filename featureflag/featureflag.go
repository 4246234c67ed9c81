package featureflag

import (
	"sort"
	"strings"
)

// FeatureFlag is the set of flags enabled on a server.
type FeatureFlag map[Flag]struct{}

// New returns the feature flags named in flags. Names are trimmed and upper
// cased; empty names are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs do when flag is set.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		do()
	}
}

// IfNotSet runs do when flag is not set.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		do()
	}
}

// Unknown returns the sorted flags that no part of the server acts on.
func (f FeatureFlag) Unknown() []string {
	var unknown []string
	for flag := range f {
		if !flag.IsKnown() {
			unknown = append(unknown, string(flag))
		}
	}
	sort.Strings(unknown)
	return unknown
}

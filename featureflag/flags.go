package featureflag

type Flag string

const (
	// Skips the bisection of silhouette edges: fields of view are built from
	// the regular samples only.
	FlagDisableEdgeRefinement Flag = "DISABLE_EDGE_REFINEMENT"

	FlagDisableFieldOfViewBroadcast  Flag = "DISABLE_FIELD_OF_VIEW_BROADCAST"
	FlagDisableTargetScan            Flag = "DISABLE_TARGET_SCAN"
	FlagDisableVisibilityReports     Flag = "DISABLE_VISIBILITY_REPORTS"
	FlagDisableParticipantBroadcasts Flag = "DISABLE_PARTICIPANT_BROADCASTS"
)

var knownFlags = map[Flag]struct{}{
	FlagDisableEdgeRefinement:        {},
	FlagDisableFieldOfViewBroadcast:  {},
	FlagDisableTargetScan:            {},
	FlagDisableVisibilityReports:     {},
	FlagDisableParticipantBroadcasts: {},
}

// IsKnown reports whether the flag is one the server acts on.
func (f Flag) IsKnown() bool {
	_, ok := knownFlags[f]
	return ok
}

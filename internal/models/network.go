package models

// ReferralEdge is one member of the referral network as stored by the
// member store: the member, their sponsor, and their own investment volume.
type ReferralEdge struct {
	// UserID is the member's identifier.
	UserID string `json:"user_id"`

	// ParentID is the sponsor's identifier. Empty for top-level members.
	ParentID string `json:"parent_id,omitempty"`

	// PersonalBusiness is the member's own investment volume.
	// It is an external input and is never recomputed by the engine.
	PersonalBusiness float64 `json:"personal_business"`

	// Active reports whether the member currently holds an active investment.
	Active bool `json:"active"`
}

// TraversalMode selects how members past the depth bound are treated.
type TraversalMode string

const (
	// TraversalStructural stops at the depth bound; deeper members are neither
	// placed in the tree nor counted.
	TraversalStructural TraversalMode = "structural"

	// TraversalStatistical stops placing members at the depth bound but keeps
	// walking so deeper members are counted toward team sizes.
	TraversalStatistical TraversalMode = "statistical"
)

// Valid reports whether m is a known traversal mode.
func (m TraversalMode) Valid() bool {
	return m == TraversalStructural || m == TraversalStatistical
}

// Node is one member placed in a built referral tree.
// Nodes live in the tree's arena and refer to each other by user id only.
type Node struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	// Path is the root-to-node id chain, e.g. "/18/19/20/".
	Path string `json:"path"`

	// Level is 1 at the root.
	Level int `json:"level"`

	// Depth is 0 at the root.
	Depth int `json:"depth"`

	DirectReferrals int `json:"direct_referrals"`

	// TotalTeamSize counts every descendant, excluding the node itself.
	TotalTeamSize int `json:"total_team_size"`

	// ActiveTeamSize counts active descendants, excluding the node itself.
	ActiveTeamSize int `json:"active_team_size"`

	PersonalBusiness float64 `json:"personal_business"`
	Active           bool    `json:"active"`

	// Children are the user ids of direct referrals placed in the tree,
	// in traversal order.
	Children []string `json:"children,omitempty"`
}

// NestedNode is the nested genealogy view of a tree, built for API output.
type NestedNode struct {
	ID               string        `json:"id"`
	ParentID         string        `json:"parent_id,omitempty"`
	Path             string        `json:"path"`
	Level            int           `json:"level"`
	Depth            int           `json:"depth"`
	DirectReferrals  int           `json:"direct_referrals"`
	TotalTeamSize    int           `json:"total_team_size"`
	ActiveTeamSize   int           `json:"active_team_size"`
	PersonalBusiness float64       `json:"personal_business"`
	Active           bool          `json:"active"`
	Children         []*NestedNode `json:"children"`
}

// TreeView is the genealogy payload: the nested tree and the depth it was
// built with.
type TreeView struct {
	Tree     *NestedNode `json:"tree"`
	MaxDepth int         `json:"maxDepth"`
}

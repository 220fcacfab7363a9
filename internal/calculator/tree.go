package calculator

import (
	"context"
	"fmt"

	"github.com/mmynk/referralnet/internal/models"
)

// cancelCheckInterval is how many members are visited between context checks.
const cancelCheckInterval = 256

// Tree is a referral tree rooted at one member.
// Nodes are stored in an arena in breadth-first order with the root at index 0;
// relationships are user ids, resolved through the arena index.
type Tree struct {
	RootID   string
	MaxDepth int
	Mode     models.TraversalMode
	Nodes    []models.Node

	// BeyondDepth counts members past MaxDepth that were counted toward team
	// sizes but not placed. Always zero in structural mode.
	BeyondDepth int

	index    map[string]int
	parents  []int
	children [][]int
}

// Len returns the number of placed members, including the root.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Root returns the root node.
func (t *Tree) Root() models.Node {
	return t.Nodes[0]
}

// Node returns the placed node for a user id.
func (t *Tree) Node(id string) (models.Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return models.Node{}, false
	}
	return t.Nodes[i], true
}

// Upline returns the ancestors of id inside the tree, nearest first.
func (t *Tree) Upline(id string) []string {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var ancestors []string
	for p := t.parents[i]; p >= 0; p = t.parents[p] {
		ancestors = append(ancestors, t.Nodes[p].ID)
	}
	return ancestors
}

// subtree returns arena indexes of i and all its placed descendants, pre-order.
func (t *Tree) subtree(i int) []int {
	var out []int
	stack := []int{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		kids := t.children[n]
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}
	}
	return out
}

// Nested returns the genealogy view of the tree.
func (t *Tree) Nested() models.TreeView {
	views := make([]*models.NestedNode, len(t.Nodes))
	for i, n := range t.Nodes {
		views[i] = &models.NestedNode{
			ID:               n.ID,
			ParentID:         n.ParentID,
			Path:             n.Path,
			Level:            n.Level,
			Depth:            n.Depth,
			DirectReferrals:  n.DirectReferrals,
			TotalTeamSize:    n.TotalTeamSize,
			ActiveTeamSize:   n.ActiveTeamSize,
			PersonalBusiness: n.PersonalBusiness,
			Active:           n.Active,
			Children:         []*models.NestedNode{},
		}
	}
	// BFS order guarantees a parent is seen before its children.
	for i := 1; i < len(views); i++ {
		p := t.parents[i]
		views[p].Children = append(views[p].Children, views[i])
	}
	return models.TreeView{Tree: views[0], MaxDepth: t.MaxDepth}
}

// BuildTree turns a flat edge set into a tree rooted at rootID.
//
// The traversal is breadth-first and bounded by maxDepth (depth 0 is the root;
// maxDepth <= 0 means unbounded). Members whose sponsor is not in the edge set
// are attached directly under the root. Members on the root's own sponsor
// chain may be present in edges and are left out of the tree. A member found in its own ancestor
// chain fails the build with *TreeIntegrityError; a cancelled or expired ctx
// fails it with *TraversalTimeoutError.
//
// In statistical mode members past maxDepth are not placed, but still count
// toward the team sizes and direct referrals of their deepest placed ancestor.
func BuildTree(ctx context.Context, edges []models.ReferralEdge, rootID string, maxDepth int, mode models.TraversalMode) (*Tree, error) {
	if rootID == "" {
		return nil, fmt.Errorf("root id cannot be empty")
	}
	if mode == "" {
		mode = models.TraversalStructural
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown traversal mode: %q", mode)
	}

	byID, err := indexEdges(edges)
	if err != nil {
		return nil, err
	}

	upline := rootUpline(edges, byID, rootID)

	// Group members under their sponsor, in input order. The root stays under
	// its own sponsor so a downline that loops back to it is caught. The root's
	// own sponsors are never part of its tree and are not treated as orphans.
	kids := make(map[string][]string, len(edges))
	for i, e := range edges {
		if byID[e.UserID] != i || upline[e.UserID] {
			continue
		}
		parent := e.ParentID
		if e.UserID == rootID {
			if _, known := byID[parent]; known {
				kids[parent] = append(kids[parent], e.UserID)
			}
			continue
		}
		if _, known := byID[parent]; !known && parent != rootID {
			parent = rootID
		}
		kids[parent] = append(kids[parent], e.UserID)
	}

	t := &Tree{
		RootID:   rootID,
		MaxDepth: maxDepth,
		Mode:     mode,
		index:    make(map[string]int),
	}
	bounded := maxDepth > 0

	rootEdge := models.ReferralEdge{UserID: rootID}
	if i, ok := byID[rootID]; ok {
		rootEdge = edges[i]
	}
	t.place(rootEdge, -1)

	// hidden[i] accumulates members beyond the bound anchored at node i.
	var hiddenTeam, hiddenActive, hiddenDirect map[int]int
	if mode == models.TraversalStatistical && bounded {
		hiddenTeam = make(map[int]int)
		hiddenActive = make(map[int]int)
		hiddenDirect = make(map[int]int)
	}

	visited := 0
	for head := 0; head < len(t.Nodes); head++ {
		visited++
		if visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &TraversalTimeoutError{RootID: rootID, Visited: visited, Err: err}
			}
		}

		node := t.Nodes[head]
		for _, childID := range kids[node.ID] {
			if _, seen := t.index[childID]; seen {
				return nil, t.revisitError(head, childID)
			}
			if bounded && node.Depth+1 > maxDepth {
				if hiddenTeam != nil {
					n, err := countHidden(ctx, kids, byID, edges, childID, t.index, &visited, rootID)
					if err != nil {
						return nil, err
					}
					hiddenTeam[head] += n.team
					hiddenActive[head] += n.active
					hiddenDirect[head]++
					t.BeyondDepth += n.team
				}
				continue
			}
			t.place(edges[byID[childID]], head)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &TraversalTimeoutError{RootID: rootID, Visited: visited, Err: err}
	}
	if err := detectDetachedCycles(edges, byID, t.index, rootID); err != nil {
		return nil, err
	}

	// Post-order accumulation: reverse BFS visits children before parents.
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		n.DirectReferrals = len(t.children[i]) + hiddenDirect[i]
		team, active := hiddenTeam[i], hiddenActive[i]
		for _, c := range t.children[i] {
			child := t.Nodes[c]
			team += child.TotalTeamSize + 1
			active += child.ActiveTeamSize
			if child.Active {
				active++
			}
		}
		n.TotalTeamSize = team
		n.ActiveTeamSize = active
	}

	return t, nil
}

// place appends a member to the arena under parent (-1 for the root).
func (t *Tree) place(e models.ReferralEdge, parent int) {
	node := models.Node{
		ID:               e.UserID,
		PersonalBusiness: e.PersonalBusiness,
		Active:           e.Active,
	}
	if parent < 0 {
		node.Path = "/" + e.UserID + "/"
		node.Level = 1
	} else {
		p := &t.Nodes[parent]
		node.ParentID = p.ID
		node.Path = p.Path + e.UserID + "/"
		node.Depth = p.Depth + 1
		node.Level = p.Level + 1
		p.Children = append(p.Children, e.UserID)
	}

	i := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)
	t.parents = append(t.parents, parent)
	t.children = append(t.children, nil)
	if parent >= 0 {
		t.children[parent] = append(t.children[parent], i)
	}
	t.index[e.UserID] = i
}

// rootUpline returns the members above rootID in the edge set. It returns nil
// when the chain loops back to rootID, so the traversal reports that cycle.
func rootUpline(edges []models.ReferralEdge, byID map[string]int, rootID string) map[string]bool {
	i, ok := byID[rootID]
	if !ok {
		return nil
	}
	upline := make(map[string]bool)
	for cur := edges[i].ParentID; ; {
		j, known := byID[cur]
		if !known || upline[cur] {
			return upline
		}
		if cur == rootID {
			return nil
		}
		upline[cur] = true
		cur = edges[j].ParentID
	}
}

// revisitError classifies reaching an already placed member from node i.
func (t *Tree) revisitError(i int, id string) error {
	for p := i; p >= 0; p = t.parents[p] {
		if t.Nodes[p].ID == id {
			return &TreeIntegrityError{CycleAt: id}
		}
	}
	return &TreeIntegrityError{Duplicate: id}
}

// indexEdges maps user ids to edge positions. Exact repeats are tolerated;
// the same user under two sponsors is not.
func indexEdges(edges []models.ReferralEdge) (map[string]int, error) {
	byID := make(map[string]int, len(edges))
	for i, e := range edges {
		if e.UserID == "" {
			return nil, fmt.Errorf("edge %d has an empty user id", i)
		}
		if e.UserID == e.ParentID {
			return nil, &TreeIntegrityError{CycleAt: e.UserID}
		}
		if prev, ok := byID[e.UserID]; ok {
			if edges[prev].ParentID != e.ParentID {
				return nil, &TreeIntegrityError{Duplicate: e.UserID}
			}
			continue
		}
		byID[e.UserID] = i
	}
	return byID, nil
}

type hiddenCount struct {
	team   int
	active int
}

// countHidden walks the subtree at id without placing it, for statistical mode.
func countHidden(ctx context.Context, kids map[string][]string, byID map[string]int, edges []models.ReferralEdge,
	id string, placed map[string]int, visited *int, rootID string) (hiddenCount, error) {
	var out hiddenCount
	seen := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := placed[cur]; ok || seen[cur] {
			return hiddenCount{}, &TreeIntegrityError{CycleAt: cur}
		}
		seen[cur] = true

		*visited++
		if *visited%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return hiddenCount{}, &TraversalTimeoutError{RootID: rootID, Visited: *visited, Err: err}
			}
		}

		out.team++
		if edges[byID[cur]].Active {
			out.active++
		}
		queue = append(queue, kids[cur]...)
	}
	return out, nil
}

// detectDetachedCycles finds sponsor loops among members the traversal never
// reached. Without it such members would silently vanish from the tree.
func detectDetachedCycles(edges []models.ReferralEdge, byID map[string]int, placed map[string]int, rootID string) error {
	const (
		open = iota + 1
		done
	)
	state := make(map[string]int, len(byID))
	for _, start := range edges {
		if _, ok := placed[start.UserID]; ok || state[start.UserID] == done {
			continue
		}
		var chain []string
		cur := start.UserID
		for {
			if _, ok := placed[cur]; ok || cur == rootID || state[cur] == done {
				break
			}
			if state[cur] == open {
				return &TreeIntegrityError{CycleAt: cur}
			}
			i, known := byID[cur]
			if !known {
				break
			}
			state[cur] = open
			chain = append(chain, cur)
			cur = edges[i].ParentID
		}
		for _, id := range chain {
			state[id] = done
		}
	}
	return nil
}

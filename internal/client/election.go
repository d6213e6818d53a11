package client

import "github.com/edforge/interview/internal/domain"

// ShouldInitiate decides which side of a pair offers first, so the two
// peers never offer simultaneously (glare). Pure function of the two
// identities; for any ordered pair exactly one side computes true:
//
//   - operator-class vs non-operator: the operator initiates
//   - same class: the lexicographically smaller UserID initiates
//
// The tie-break relies on user ids being stable, comparable and
// collision-free (UUID-like), see domain.UserID.
func ShouldInitiate(localID domain.UserID, localRole domain.Role, remoteID domain.UserID, remoteRole domain.Role) bool {
	localOp := localRole.IsOperatorClass()
	remoteOp := remoteRole.IsOperatorClass()
	switch {
	case localOp && !remoteOp:
		return true
	case !localOp && remoteOp:
		return false
	default:
		return localID < remoteID
	}
}

package protocol

import "slices"

// Permissions control access to a stored value set.
type Permissions struct {
	Owner    string   `json:"owner"`
	Retrieve []string `json:"retrieve"`
	Update   []string `json:"update"`
	Delete   []string `json:"delete"`
	// Compute maps a user id to the program ids it may compute with.
	Compute map[string][]string `json:"compute"`
}

// DefaultPermissionsForUser grants the owner retrieve, update and delete.
// No compute permission is granted.
func DefaultPermissionsForUser(userID string) *Permissions {
	return &Permissions{
		Owner:    userID,
		Retrieve: []string{userID},
		Update:   []string{userID},
		Delete:   []string{userID},
		Compute:  map[string][]string{},
	}
}

// AddComputePermissions grants each user compute access with the listed programs.
func (p *Permissions) AddComputePermissions(grants map[string][]string) {
	if p.Compute == nil {
		p.Compute = make(map[string][]string, len(grants))
	}
	for user, programs := range grants {
		for _, program := range programs {
			if !slices.Contains(p.Compute[user], program) {
				p.Compute[user] = append(p.Compute[user], program)
			}
		}
		slices.Sort(p.Compute[user])
	}
}

// CanCompute reports whether userID may compute over the values with programID.
func (p *Permissions) CanCompute(userID, programID string) bool {
	return slices.Contains(p.Compute[userID], programID)
}

// CanRetrieve reports whether userID may read the values back.
func (p *Permissions) CanRetrieve(userID string) bool {
	return p.Owner == userID || slices.Contains(p.Retrieve, userID)
}

// CanDelete reports whether userID may delete the value set.
func (p *Permissions) CanDelete(userID string) bool {
	return p.Owner == userID || slices.Contains(p.Delete, userID)
}

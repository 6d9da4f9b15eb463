// Package interaction implements the interaction-direction matrix named
// in spec §2 (component C11): a fixed, enumerated grid of which entity
// types may address which other entity types, and in what direction.
// Grounded on the teacher's pkg/identity/types.go enumeration style
// (closed entity-type sets) and pkg/governance/jurisdiction.go's
// allow/deny grid shape, adapted here from jurisdiction pairs to
// {from,to} entity-type pairs.
package interaction

import "github.com/nooterra/trustcore/pkg/errs"

// EntityType is the closed set of parties that can appear on either
// side of an interaction (spec §3's principalType union plus "agent",
// which every record in this module ultimately addresses or is
// addressed by).
type EntityType string

const (
	EntityHuman   EntityType = "human"
	EntityOrg     EntityType = "org"
	EntityService EntityType = "service"
	EntityAgent   EntityType = "agent"
)

var allEntityTypes = []EntityType{EntityHuman, EntityOrg, EntityService, EntityAgent}

// Direction names the single degree of freedom the matrix cells carry:
// whether a {from,to} pair may interact at all under this system's
// commerce model.
type Direction struct {
	From    EntityType
	To      EntityType
	Allowed bool
}

// defaultMatrix is the fixed {from,to} grid: every entity type may
// address an agent (agents are always reachable), agents may address
// every entity type, and direct human-to-human or org-to-org traffic
// (which carries no agent on either side) falls outside this system's
// scope.
var defaultMatrix = buildDefaultMatrix()

func buildDefaultMatrix() map[EntityType]map[EntityType]bool {
	m := make(map[EntityType]map[EntityType]bool, len(allEntityTypes))
	for _, from := range allEntityTypes {
		m[from] = make(map[EntityType]bool, len(allEntityTypes))
		for _, to := range allEntityTypes {
			m[from][to] = from == EntityAgent || to == EntityAgent
		}
	}
	return m
}

// Allowed reports whether from may initiate an interaction addressed
// to to under the default matrix.
func Allowed(from, to EntityType) (bool, error) {
	if err := validateEntityType("from", from); err != nil {
		return false, err
	}
	if err := validateEntityType("to", to); err != nil {
		return false, err
	}
	return defaultMatrix[from][to], nil
}

// Matrix returns every cell of the default grid in a stable
// (from, to) enumeration order, for callers that need to render or
// serialize the whole table.
func Matrix() []Direction {
	out := make([]Direction, 0, len(allEntityTypes)*len(allEntityTypes))
	for _, from := range allEntityTypes {
		for _, to := range allEntityTypes {
			out = append(out, Direction{From: from, To: to, Allowed: defaultMatrix[from][to]})
		}
	}
	return out
}

func validateEntityType(field string, t EntityType) error {
	for _, e := range allEntityTypes {
		if e == t {
			return nil
		}
	}
	return errs.New("ENTITY_TYPE_INVALID", field+" is not one of the allowed entity types")
}

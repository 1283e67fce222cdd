package precedence

import "github.com/davidahmann/continuum/pkg/types"

var issuerRanks = map[string]int{
	"system": 30,
	"human":  20,
	"agent":  10,
}

var authorityRanks = map[string]int{
	"admin":  30,
	"lead":   20,
	"member": 10,
}

// AuthorityRank sums the issuer-type and authority-level ranks of d. The
// enforcement fields take priority over metadata of the same name.
func AuthorityRank(d types.Decision) int {
	issuer := d.Enforcement.IssuerType
	if issuer == "" {
		issuer = d.MetadataString("issuer_type")
	}
	authority := d.Enforcement.Authority
	if authority == "" {
		authority = d.MetadataString("authority")
	}
	return issuerRanks[issuer] + authorityRanks[authority]
}

package news

import "strings"

// Region is one label of the closed region taxonomy.
type Region string

const (
	RegionAmericas      Region = "americas"
	RegionEurope        Region = "europe"
	RegionAsia          Region = "asia"
	RegionMiddleEast    Region = "middle_east"
	RegionAfrica        Region = "africa"
	RegionInternational Region = "international"
)

// Regions lists the whole taxonomy.
var Regions = []Region{
	RegionAmericas,
	RegionEurope,
	RegionAsia,
	RegionMiddleEast,
	RegionAfrica,
	RegionInternational,
}

var countryRegions = map[string]Region{
	"us": RegionAmericas, "ca": RegionAmericas, "br": RegionAmericas, "mx": RegionAmericas,
	"gb": RegionEurope, "de": RegionEurope, "fr": RegionEurope, "tr": RegionEurope,
	"jp": RegionAsia, "in": RegionAsia, "au": RegionAsia,
	"sa": RegionMiddleEast, "ae": RegionMiddleEast, "eg": RegionMiddleEast,
	"il": RegionMiddleEast, "qa": RegionMiddleEast,
	"za": RegionAfrica, "ng": RegionAfrica,
	"global": RegionInternational,
}

// RegionOf maps a country or source code to its region. Anything not in
// the table is international.
func RegionOf(country string) Region {
	if r, ok := countryRegions[strings.ToLower(strings.TrimSpace(country))]; ok {
		return r
	}
	return RegionInternational
}

// Label renders the region for on-screen text: "middle_east" -> "MIDDLE EAST".
func (r Region) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(r), "_", " "))
}

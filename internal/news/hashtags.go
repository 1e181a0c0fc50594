package news

import "strings"

// BaseHashtags go on every post.
const BaseHashtags = "#worldnews #global #breaking #fyp #viral #trending"

var countryTags = map[string]string{
	"us": "#USA", "gb": "#UK", "ca": "#Canada", "au": "#Australia",
	"de": "#Germany", "fr": "#France", "jp": "#Japan", "in": "#India",
	"br": "#Brazil", "mx": "#Mexico", "sa": "#SaudiArabia", "ae": "#UAE",
	"eg": "#Egypt", "tr": "#Turkey", "il": "#Israel", "qa": "#Qatar",
	"za": "#SouthAfrica", "ng": "#Nigeria",
}

var regionTags = map[Region]string{
	RegionAmericas:   "#Americas",
	RegionEurope:     "#Europe",
	RegionAsia:       "#Asia",
	RegionMiddleEast: "#MiddleEast",
	RegionAfrica:     "#Africa",
}

var categoryTags = map[Category]string{
	CategoryConflict:   "#conflict #war",
	CategoryEconomy:    "#economy #market",
	CategoryPolitics:   "#politics #government",
	CategoryTechnology: "#tech #innovation",
}

// Hashtags builds the hashtag line for a story from static tables. Unknown
// country, region or category add nothing.
func Hashtags(s Story) string {
	parts := []string{BaseHashtags}
	if tag, ok := countryTags[strings.ToLower(s.Country)]; ok {
		parts = append(parts, tag)
	}
	if tag, ok := regionTags[s.Region]; ok {
		parts = append(parts, tag)
	}
	if tag, ok := categoryTags[s.Category]; ok {
		parts = append(parts, tag)
	}
	return strings.Join(parts, " ")
}

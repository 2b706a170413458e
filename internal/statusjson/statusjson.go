// Package statusjson builds the synthetic Java status Response JSON body
// using a dynamic document instead of a fixed struct, so the optional
// favicon field is simply left out when empty rather than hand-tagged
// with omitempty. The version, players (including a zero online count)
// and description fields are always present.
package statusjson

import (
	"github.com/Jeffail/gabs/v2"
)

// Params describes the fields a Response body needs.
type Params struct {
	ProtocolVersion int32
	VersionName     string
	MaxPlayers      int
	OnlinePlayers   int
	Description     string
	FaviconDataURI  string // e.g. "data:image/png;base64,..."; empty to omit
}

// Build renders the Response JSON body as bytes.
func Build(p Params) []byte {
	doc := gabs.New()
	doc.SetP(p.VersionName, "version.name")
	doc.SetP(p.ProtocolVersion, "version.protocol")
	doc.SetP(p.MaxPlayers, "players.max")
	doc.SetP(p.OnlinePlayers, "players.online")
	doc.Set(descriptionComponent(p.Description), "description")
	if p.FaviconDataURI != "" {
		doc.SetP(p.FaviconDataURI, "favicon")
	}
	return doc.Bytes()
}

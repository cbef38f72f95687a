package domain

import (
	"slices"
	"strings"

	perr "signalroom/internal/platform/errors"
)

// DefaultClient tags rows when no client id is given
const DefaultClient = "713"

// Client is an account the data is tagged for. Tagging is grouping only;
// clients share tables
type Client struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Sources []SourceName `json:"sources,omitempty"`
}

var clients = []Client{
	{ID: "713", Name: "713"},
	{ID: "cti", Name: "ClayTargetInstruction"},
}

// Clients lists the registry
func Clients() []Client { return slices.Clone(clients) }

// LookupClient resolves id, "" meaning DefaultClient. Unknown ids are a
// configuration error
func LookupClient(id string) (Client, error) {
	if id = strings.TrimSpace(strings.ToLower(id)); id == "" {
		id = DefaultClient
	}
	for _, c := range clients {
		if c.ID == id {
			return c, nil
		}
	}
	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}
	return Client{}, perr.WithField(perr.Configf("unknown client %q, available: %v", id, ids), "client_id")
}

package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/passvault/pkg/vault"
)

// ReuseGroup is a set of credentials sharing one password.
type ReuseGroup struct {
	// IDs of the credentials in the group, in vault order.
	IDs []string `json:"ids,omitempty"`
	// Count is the group size.
	Count int `json:"count"`
}

// FindReused groups credentials by password. Passwords are compared
// through HMAC-SHA256 under the calculator's session key, so no digest
// outlives the report. Groups come back largest first.
func (c *Calculator) FindReused(creds []vault.Credential) []ReuseGroup {
	byHash := make(map[string][]string)
	var order []string
	for _, cred := range creds {
		if cred.Password == "" {
			continue
		}
		h := c.valueHash(cred.Password)
		if _, ok := byHash[h]; !ok {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], cred.ID)
	}

	var groups []ReuseGroup
	for _, h := range order {
		ids := byHash[h]
		if len(ids) < 2 {
			continue
		}
		groups = append(groups, ReuseGroup{IDs: ids, Count: len(ids)})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

func (c *Calculator) valueHash(value string) string {
	h := hmac.New(sha256.New, c.hmacKey)
	h.Write([]byte(norm.NFC.String(value)))
	return hex.EncodeToString(h.Sum(nil))
}

package services

import (
	"sort"
	"strings"
	"unicode"

	"github.com/chronolens/chronolens/internal/models"
)

// IdentityService merges raw (name, email) author aliases into canonical
// identities. Resolution is a pure function of the input alias set: the same
// commits produce the same partition regardless of traversal order.
//
// Case-insensitive email equality is the primary merge rule. A normalized
// display-name match is a secondary heuristic for the same person committing
// under different emails, but a name shared by three or more email groups is
// ambiguous and never merged: split identities beat false merges.
type IdentityService struct{}

// NewIdentityService creates a new identity service
func NewIdentityService() *IdentityService {
	return &IdentityService{}
}

// IdentityResolution is the computed alias partition for one analysis run
type IdentityResolution struct {
	Identities []*models.Identity
	byAlias    map[string]string // aliasKey -> canonical identity key
	byKey      map[string]*models.Identity
}

// KeyFor returns the canonical identity key for a raw author pair
func (r *IdentityResolution) KeyFor(name, email string) string {
	if key, ok := r.byAlias[aliasKey(name, email)]; ok {
		return key
	}
	return models.UnknownIdentityKey
}

// Get returns the identity for a canonical key
func (r *IdentityResolution) Get(key string) (*models.Identity, bool) {
	id, ok := r.byKey[key]
	return id, ok
}

// aliasGroup accumulates aliases that belong to one identity candidate
type aliasGroup struct {
	key     string
	aliases map[string]models.Alias
	counts  map[string]int
	names   map[string]bool // normalized display names seen in this group
}

// Resolve partitions the authors of the given commits into canonical
// identities and stamps each commit with its identity key.
func (s *IdentityService) Resolve(commits []*models.Commit) *IdentityResolution {
	groups := make(map[string]*aliasGroup)

	record := func(groupKey, name, email string) {
		g, ok := groups[groupKey]
		if !ok {
			g = &aliasGroup{
				key:     groupKey,
				aliases: make(map[string]models.Alias),
				counts:  make(map[string]int),
				names:   make(map[string]bool),
			}
			groups[groupKey] = g
		}
		ak := aliasKey(name, email)
		g.aliases[ak] = models.Alias{Name: name, Email: email}
		g.counts[ak]++
		if n := normalizeName(name); n != "" {
			g.names[n] = true
		}
	}

	for _, commit := range commits {
		name := strings.TrimSpace(commit.AuthorName)
		email := strings.TrimSpace(commit.AuthorEmail)

		switch {
		case validEmail(email):
			record("email:"+strings.ToLower(email), name, email)
		case normalizeName(name) != "":
			record("name:"+normalizeName(name), name, email)
		default:
			// Empty or malformed author: sentinel identity, never a run failure.
			record(models.UnknownIdentityKey, name, email)
		}
	}

	merged := s.mergeByDisplayName(groups)

	resolution := &IdentityResolution{
		byAlias: make(map[string]string),
		byKey:   make(map[string]*models.Identity),
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		identity := buildIdentity(merged[key])
		resolution.Identities = append(resolution.Identities, identity)
		resolution.byKey[identity.Key] = identity
		for ak := range merged[key].aliases {
			resolution.byAlias[ak] = identity.Key
		}
	}

	for _, commit := range commits {
		commit.IdentityKey = resolution.KeyFor(
			strings.TrimSpace(commit.AuthorName), strings.TrimSpace(commit.AuthorEmail))
	}

	return resolution
}

// mergeByDisplayName applies the secondary heuristic: email groups sharing
// exactly one partner under a normalized name are merged; names spanning
// three or more groups are ambiguous and left split.
func (s *IdentityService) mergeByDisplayName(groups map[string]*aliasGroup) map[string]*aliasGroup {
	nameOwners := make(map[string][]string)
	for key, g := range groups {
		if key == models.UnknownIdentityKey {
			continue
		}
		for n := range g.names {
			nameOwners[n] = append(nameOwners[n], key)
		}
	}

	// Union-find over group keys, processed in sorted order for determinism.
	parent := make(map[string]string)
	var find func(string) string
	find = func(k string) string {
		if parent[k] == "" || parent[k] == k {
			return k
		}
		root := find(parent[k])
		parent[k] = root
		return root
	}

	names := make([]string, 0, len(nameOwners))
	for n := range nameOwners {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		owners := nameOwners[n]
		if len(owners) != 2 {
			continue // unique or ambiguous
		}
		sort.Strings(owners)
		a, b := find(owners[0]), find(owners[1])
		if a != b {
			parent[b] = a
		}
	}

	merged := make(map[string]*aliasGroup)
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		root := find(key)
		g := groups[key]
		target, ok := merged[root]
		if !ok {
			target = &aliasGroup{
				key:     root,
				aliases: make(map[string]models.Alias),
				counts:  make(map[string]int),
				names:   make(map[string]bool),
			}
			merged[root] = target
		}
		for ak, alias := range g.aliases {
			target.aliases[ak] = alias
			target.counts[ak] += g.counts[ak]
		}
		for n := range g.names {
			target.names[n] = true
		}
	}

	return merged
}

// buildIdentity picks the canonical name/email of a group: the most used
// alias wins, ties broken lexicographically for determinism.
func buildIdentity(g *aliasGroup) *models.Identity {
	aks := make([]string, 0, len(g.aliases))
	for ak := range g.aliases {
		aks = append(aks, ak)
	}
	sort.Strings(aks)

	best := ""
	for _, ak := range aks {
		if best == "" || g.counts[ak] > g.counts[best] {
			best = ak
		}
	}

	primary := g.aliases[best]
	identity := &models.Identity{
		Name:  primary.Name,
		Email: primary.Email,
	}

	if g.key == models.UnknownIdentityKey {
		identity.Key = models.UnknownIdentityKey
		identity.Name = "Unknown"
	} else if validEmail(primary.Email) {
		identity.Key = strings.ToLower(primary.Email)
	} else {
		identity.Key = normalizeName(primary.Name)
	}

	for _, ak := range aks {
		identity.Aliases = append(identity.Aliases, g.aliases[ak])
	}

	return identity
}

func aliasKey(name, email string) string {
	return strings.ToLower(name) + "\x00" + strings.ToLower(email)
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

// normalizeName lowercases and keeps only letters and digits, so that
// "Jane Doe" and "jane.doe" compare equal
func normalizeName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

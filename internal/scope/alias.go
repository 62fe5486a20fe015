package scope

import "strings"

// Aliases maps a parameter or alias binding to the storage location it
// stands for. Lookups chase links to the terminal slot.
type Aliases struct {
	links map[Key]Key
}

// NewAliases creates an empty table.
func NewAliases() *Aliases {
	return &Aliases{links: make(map[Key]Key)}
}

// Link records that from refers to to. Self links are ignored.
func (a *Aliases) Link(from, to Key) {
	if from == to {
		return
	}
	a.links[from] = to
}

// Unlink removes the link starting at from.
func (a *Aliases) Unlink(from Key) {
	delete(a.links, from)
}

// Target returns the direct link of k.
func (a *Aliases) Target(k Key) (Key, bool) {
	to, ok := a.links[k]
	return to, ok
}

// Len returns the number of links.
func (a *Aliases) Len() int {
	return len(a.links)
}

// Resolve chases k to its terminal slot. When k has no link, trailing local
// frames are dropped from its scope one at a time and the chase retried;
// if nothing matches, k itself is returned.
func (a *Aliases) Resolve(k Key) Key {
	for probe := k; ; {
		if to, ok := a.chase(probe); ok {
			return to
		}
		trimmed, ok := dropLocal(probe.Scope)
		if !ok {
			return k
		}
		probe.Scope = trimmed
	}
}

func (a *Aliases) chase(k Key) (Key, bool) {
	seen := map[Key]bool{k: true}
	matched := false
	for {
		to, ok := a.links[k]
		if !ok || seen[to] {
			return k, matched
		}
		seen[to] = true
		k = to
		matched = true
	}
}

func dropLocal(scope string) (string, bool) {
	if strings.HasSuffix(scope, "."+Local) {
		return strings.TrimSuffix(scope, "."+Local), true
	}
	return scope, false
}

// DropFrame removes every link that starts in or below the frame path.
func (a *Aliases) DropFrame(path string) {
	for from := range a.links {
		if from.Scope == path || strings.HasPrefix(from.Scope, path+".") {
			delete(a.links, from)
		}
	}
}

// Reset removes every link.
func (a *Aliases) Reset() {
	clear(a.links)
}

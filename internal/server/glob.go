package server

import "github.com/gobwas/glob"

// compileGlob compiles a KEYS pattern (*, ?, [abc]) into a match
// predicate. Grounded on shanas-swi's use of gobwas/glob for wildcard
// matching rather than hand-rolling the classic recursive glob matcher.
func compileGlob(pattern string) (func(string) bool, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return g.Match, nil
}

package procfs

import "strings"

// prefixRule is one token of a ";"-separated prefix filter spec. A
// token beginning with "!" is a reject rule over the remaining stem;
// any other token is an accept rule over itself.
type prefixRule struct {
	stem   string
	reject bool
}

// PrefixFilter implements spec.md's ordered include/exclude filtering
// for exe and map paths: the first rule whose stem prefixes the
// candidate path wins; if no rule matches, the path is accepted.
type PrefixFilter struct {
	rules []prefixRule
}

// ParsePrefixFilter builds a PrefixFilter from a ";"-separated spec
// such as "/usr/;/lib;/var/cache/;!/" (mapprefix's default) or
// "!/usr/sbin/;!/usr/local/sbin/;/usr/;!/" (exeprefix's default).
func ParsePrefixFilter(spec string) PrefixFilter {
	var f PrefixFilter
	for _, tok := range strings.Split(spec, ";") {
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "!") {
			f.rules = append(f.rules, prefixRule{stem: tok[1:], reject: true})
		} else {
			f.rules = append(f.rules, prefixRule{stem: tok})
		}
	}
	return f
}

// Accept applies the ordered rule list to path.
func (f PrefixFilter) Accept(path string) bool {
	for _, r := range f.rules {
		if strings.HasPrefix(path, r.stem) {
			return !r.reject
		}
	}
	return true
}

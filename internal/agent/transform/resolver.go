package transform

import "strings"

// First returns the value of the first alias present in m with a non-null value.
// Aliases are dotted paths into nested objects ("data.status").
func First(m map[string]any, aliases ...string) (any, bool) {
	for _, a := range aliases {
		if v, ok := lookup(m, a); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// prefixed returns "prefix.alias" for every alias followed by the aliases themselves.
func prefixed(prefix string, aliases ...string) []string {
	out := make([]string, 0, 2*len(aliases))
	for _, a := range aliases {
		out = append(out, prefix+"."+a)
	}
	return append(out, aliases...)
}

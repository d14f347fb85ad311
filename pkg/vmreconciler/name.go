package vmreconciler

import "regexp"

// nameRE is the bit-exact VM naming pattern: wso-<manager>-<type>-<service>-<uuid>.
var nameRE = regexp.MustCompile(`^wso-(?P<manager>.+)-(?P<type>wrk|lb)-(?P<service>.+)-(?P<uuid>[0-9a-f-]{36})$`)

// parsedName is a hypervisor domain name decomposed into its fields.
type parsedName struct {
	Manager string
	Type    string
	Service string
	UUID    string
}

// parseName decomposes a domain name, returning false if it doesn't
// match the wso-<manager>-<type>-<service>-<uuid> pattern. Names that
// don't match belong to something this module doesn't own and are
// never touched.
func parseName(name string) (parsedName, bool) {
	m := nameRE.FindStringSubmatch(name)
	if m == nil {
		return parsedName{}, false
	}
	idx := nameRE.SubexpIndex
	return parsedName{
		Manager: m[idx("manager")],
		Type:    m[idx("type")],
		Service: m[idx("service")],
		UUID:    m[idx("uuid")],
	}, true
}

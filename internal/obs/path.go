package obs

import "strings"

// CanonicalPath collapses resource identifiers out of request paths so that
// metric label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "agents":
		parts[2] = ":id"
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "companies":
		parts[2] = ":id"
		if len(parts) >= 5 && parts[3] == "networks" {
			parts[4] = ":network_id"
		}
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "requests" && parts[2] != "pending" && parts[2] != "bulk":
		parts[2] = ":id"
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "users":
		parts[2] = ":id"
	case len(parts) >= 5 && parts[0] == "v1" && parts[1] == "library" && parts[3] == "agents":
		parts[4] = ":agent_id"
	default:
		return path
	}
	return "/" + strings.Join(parts, "/")
}

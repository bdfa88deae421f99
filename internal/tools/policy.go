package tools

// Profiles are the closed set named in §4.D: "full", "minimal", "coding".
// "full" performs no profile filtering; the other two name exact tool
// sets rather than groups, since the built-in tool surface is small and
// fixed — unlike the teacher's dynamic MCP group registry, there is
// nothing here to expand at runtime.
const (
	ProfileFull    = "full"
	ProfileMinimal = "minimal"
	ProfileCoding  = "coding"
)

var minimalProfile = []string{"web_fetch", "web_search", "memory", "session_status"}

var codingProfile = appendUnique(minimalProfile, "shell", "read_file", "write_file", "list_files")

// inProfileSet reports whether name belongs to profile's tool set.
// "full" (or an unrecognized profile name, treated the same way the
// teacher treats an unknown profile: fail open to "full") imposes no
// restriction.
func inProfileSet(name, profile string) bool {
	switch profile {
	case ProfileMinimal:
		return contains(minimalProfile, name)
	case ProfileCoding:
		return contains(codingProfile, name)
	default:
		return true
	}
}

func appendUnique(base []string, extra ...string) []string {
	out := make([]string, len(base))
	copy(out, base)
	for _, e := range extra {
		if !contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

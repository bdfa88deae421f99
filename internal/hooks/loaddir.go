package hooks

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// LoadDir loads declarative hook definitions from every regular,
// executable file directly under dir. Each script's header comments
// declare the binding:
//
//	# hook:<event>
//	# priority:<n>
//	# strategy:<name>   (optional; defaults per event like Register)
//
// A script lacking a `# hook:` line is skipped. Registered hooks are
// enabled by default. Returns the names registered.
func (d *Dispatcher) LoadDir(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read hook scripts dir", err)
	}

	var registered []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		path := filepath.Join(dir, f.Name())
		event, priority, strategy, ok := parseHookHeader(path)
		if !ok {
			continue
		}
		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		if _, err := d.Register(name, event, path, true, priority, strategy); err != nil {
			return registered, err
		}
		registered = append(registered, name)
	}
	return registered, nil
}

// parseHookHeader scans the leading comment block of path (lines starting
// with "#") for "hook:", "priority:", and "strategy:" directives.
func parseHookHeader(path string) (event Event, priority int, strategy Strategy, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		switch {
		case strings.HasPrefix(body, "hook:"):
			event = Event(strings.TrimSpace(strings.TrimPrefix(body, "hook:")))
			ok = true
		case strings.HasPrefix(body, "priority:"):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "priority:"))); err == nil {
				priority = n
			}
		case strings.HasPrefix(body, "strategy:"):
			strategy = Strategy(strings.TrimSpace(strings.TrimPrefix(body, "strategy:")))
		}
	}
	if !ok || !IsValidEvent(event) {
		return "", 0, "", false
	}
	return event, priority, strategy, true
}

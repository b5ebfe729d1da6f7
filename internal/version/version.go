package version

import (
	"os"
	"strings"
)

const Dev = "dev"

// Load reads the release version from the VERSION file at path. A missing or
// empty file yields Dev.
func Load(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dev
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return Dev
	}
	return strings.TrimPrefix(v, "v")
}

package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultLatest = 3
	maxLatest     = 10
)

// ParseLatestArg extracts the number of entries requested by /latest.
// An empty argument selects the default count.
func ParseLatestArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return defaultLatest, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 || n > maxLatest {
		return 0, fmt.Errorf("count must be between 1 and %d", maxLatest)
	}
	return n, nil
}

// ParseCallbackData splits inline keyboard data of the form "action:arg".
func ParseCallbackData(data string) (action, arg string, err error) {
	action, arg, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	return action, arg, nil
}

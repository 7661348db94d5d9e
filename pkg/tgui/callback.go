package tgui

import "strings"

// Data formats inline callback data as "action:arg:arg...". Args are kept
// as-is; Telegram limits callback_data to 64 bytes, so keep payloads short.
func Data(action string, args ...string) string {
	if len(args) == 0 {
		return action
	}
	return action + ":" + strings.Join(args, ":")
}

// ParseData splits callback data produced by Data into the action and its
// arguments. Empty input yields an empty action and nil args.
func ParseData(data string) (action string, args []string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", nil
	}
	parts := strings.Split(data, ":")
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}

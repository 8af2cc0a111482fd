package chat

import (
	"bytes"
	"unicode/utf8"
)

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// FirstWord returns the first whitespace-delimited token of frame, or an
// empty slice when the frame is blank.
func FirstWord(frame []byte) []byte {
	start := bytes.IndexFunc(frame, func(r rune) bool { return !isASCIISpace(r) })
	if start < 0 {
		return nil
	}
	rest := frame[start:]
	if end := bytes.IndexFunc(rest, isASCIISpace); end >= 0 {
		return rest[:end]
	}
	return rest
}

// FirstTwoWords returns the first two tokens of frame. Missing tokens are
// returned as empty strings.
func FirstTwoWords(frame []byte) (string, string) {
	fields := bytes.FieldsFunc(frame, isASCIISpace)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return string(fields[0]), ""
	default:
		return string(fields[0]), string(fields[1])
	}
}

// ParseCommand matches the keyword case-sensitively. Anything unknown,
// including a blank frame, is chat text.
func ParseCommand(frame []byte) Command {
	switch string(FirstWord(frame)) {
	case "JOIN":
		return CommandJoin
	case "WHO":
		return CommandWho
	case "LEAVE":
		return CommandLeave
	case "VERSION":
		return CommandVersion
	default:
		return CommandBroadcast
	}
}

// TruncateName cuts name to at most max bytes without leaving a partial
// UTF-8 sequence at the end.
func TruncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	cut := name[:max]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}

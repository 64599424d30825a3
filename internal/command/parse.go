// Package command turns line-oriented console input of the form
// "namespace:command arg1 "arg two"" into bus events, and collects that
// input from serial, telnet and stdin sources.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFormat is returned for input that is not "namespace:command [args]".
var ErrFormat = errors.New("command: invalid format")

// Command is one parsed input line.
type Command struct {
	Namespace string
	Name      string
	Params    []string
}

// Parse splits line into namespace, command and parameters. The first ':'
// separates the namespace; a space before it is a format error.
func Parse(line string) (Command, error) {
	nsIndex := strings.IndexByte(line, ':')
	spIndex := strings.IndexByte(line, ' ')
	if nsIndex < 0 || (spIndex >= 0 && spIndex < nsIndex) {
		return Command{}, fmt.Errorf("%w: %s", ErrFormat, line)
	}

	cmd := Command{Namespace: line[:nsIndex]}
	if spIndex < 0 {
		cmd.Name = line[nsIndex+1:]
		return cmd, nil
	}
	cmd.Name = line[nsIndex+1 : spIndex]
	cmd.Params = SplitParams(line[spIndex+1:])
	return cmd, nil
}

// SplitParams tokenizes s on spaces. A double quote toggles quoting, inside
// which spaces are literal. Empty tokens, including "", are dropped.
func SplitParams(s string) []string {
	var params []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			params = append(params, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			if !inQuotes {
				flush()
			}
		case c == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return params
}

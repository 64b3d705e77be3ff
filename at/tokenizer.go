package at

import (
	"bufio"
	"bytes"
)

// Splitter is used for tokenizing ESP8266 responses. It uses the signature
// of bufio.SplitFunc so it can be directly used with bufio.Scanner, but the
// driver also applies it by hand to its own buffer because a bounded serial
// read may return no data at all.
//
// Lines end with LF; a CR immediately before the LF is dropped. The data
// prompt ("> ") sent after AT+CIPSEND is returned as its own token.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

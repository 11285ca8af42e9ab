package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// errEmptyAudio covers empty, header-only, and undecodable payloads alike;
// callers report all of them as a missing-audio condition.
var errEmptyAudio = errors.New("empty audio payload")

// decodeAudioPayload splits a data-URI style payload ("<header>,<base64>")
// and decodes the body.
func decodeAudioPayload(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, errEmptyAudio
	}
	_, encoded, found := strings.Cut(payload, ",")
	if !found || encoded == "" {
		return nil, errEmptyAudio
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if len(data) == 0 {
		return nil, errEmptyAudio
	}
	return data, nil
}

// audioFileName builds a collision-resistant name from the student identity,
// question number, and submission time down to microseconds.
func audioFileName(student string, questionNum int, t time.Time) string {
	return fmt.Sprintf("%s_q%d_%s_%06d.webm",
		safeName(student), questionNum, t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// safeName reduces a display name to a filesystem-safe slug.
func safeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "student"
	}
	return b.String()
}

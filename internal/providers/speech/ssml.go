package speech

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// emotionStyles maps pipeline emotions onto the express-as styles the speech
// service understands.
var emotionStyles = map[string]string{
	"neutral":  "chat",
	"cheerful": "cheerful",
	"excited":  "excited",
	"sad":      "sad",
	"angry":    "angry",
	"calm":     "calm",
	"gentle":   "gentle",
}

// StyleFor resolves an emotion to a synthesis style, defaulting to chat.
func StyleFor(emotion string) string {
	if style, ok := emotionStyles[strings.ToLower(strings.TrimSpace(emotion))]; ok {
		return style
	}
	return "chat"
}

// BuildSSML renders the synthesis markup for one unit of speech.
func BuildSSML(text, voice, emotion string) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))

	var sb strings.Builder
	sb.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`)
	fmt.Fprintf(&sb, `<voice name="%s">`, voice)
	fmt.Fprintf(&sb, `<mstts:express-as style="%s">`, StyleFor(emotion))
	sb.WriteString(`<prosody rate="0%" pitch="0%">`)
	sb.WriteString(escaped.String())
	sb.WriteString(`</prosody></mstts:express-as></voice></speak>`)
	return sb.String()
}

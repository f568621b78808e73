// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import "strings"

// DefaultDescriptionMaxWords is the longest utterance still treated as a
// description of the next tool call.
const DefaultDescriptionMaxWords = 12

// Class is the classification of an agent text event.
type Class int

const (
	// Description is a short caption for the upcoming tool call.
	Description Class = iota
	// Content is answer text shown in the chat transcript.
	Content
)

func (c Class) String() string {
	if c == Description {
		return "description"
	}
	return "content"
}

// WordCount counts words the way the chat UI does: the trimmed text split on
// single spaces. Runs of spaces therefore count as extra words.
func WordCount(text string) int {
	return len(strings.Split(strings.TrimSpace(text), " "))
}

// Classify returns Description for text of at most maxWords words.
// A non-positive maxWords selects the default.
func Classify(text string, maxWords int) Class {
	if maxWords <= 0 {
		maxWords = DefaultDescriptionMaxWords
	}
	if WordCount(text) <= maxWords {
		return Description
	}
	return Content
}

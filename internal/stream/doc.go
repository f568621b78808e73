// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stream translates the agent's NDJSON event feed into the chat UI's
// data stream framing.
//
// One upstream line is one JSON event with a "type"/"event" discriminator.
// The translator pairs tool starts with their terminal result or error by
// tool id, classifies short agent utterances as tool descriptions, and
// re-emits each event as zero or more frames:
//
//	0:"answer text"\n
//	2:[{"type":"data","event":"agent.tool-start",...}]\n
//	3:"error message"\n
//	d:{"finishReason":"stop"}\n
//
// All state is scoped to a single Relay call.
package stream

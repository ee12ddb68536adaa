// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chat endpoint's server-sent event stream into
// typed events.
//
// The wire format is newline-delimited. Only lines starting with "data: "
// carry payloads; every other line (blank separators, ": keep-alive"
// comments, "event:" or "id:" fields) is ignored. A payload of "[DONE]"
// yields a synthetic done event. Any other payload is JSON of the form
//
//	{"type": "text-delta", "data": "Hel"}
//
// and is dropped silently if it does not parse. A malformed frame never
// aborts the stream.
//
// # Key Types
//
//   - Framer: push-style line buffer; feed it chunks, get events back
//   - Decoder: pull-style reader over a response body; owns and closes it
//   - Event: one decoded frame with typed payload accessors
//
// # Usage
//
//	dec := stream.NewDecoder(resp.Body)
//	defer dec.Close()
//	for {
//	    ev, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
package stream

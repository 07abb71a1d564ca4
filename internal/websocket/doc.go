// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package websocket delivers live discussion updates to connected browsers.

Key Components:

  - Registry: maps "page:{id}" and "user:{id}" keys to live sessions,
    with one lock per key
  - Engine: turns domain events into wire messages and fans them out
  - Session: one socket, moving Connecting -> Joined -> Closed, with a
    read pump and a write pump
  - NATSRelay: mirrors broadcasts to other instances (build tag nats)

Fan-out:

	comment created  -> page:{page}   new_comment
	                 -> user:{parent} notification (replies to others only)
	vote changed     -> page:{page}   vote_update
	typing           -> page:{page}   typing (sender excluded)

Each broadcast is encoded once. Frames are queued without blocking under
the key's lock, so a session sees events for a room in publish order and
new_comment always precedes the matching notification. A session whose
buffer is full is closed; its failure never reaches other members or the
write that triggered the broadcast.

Wire format:

	{"type":"connection_established","message":"Connected to comment room"}
	{"type":"new_comment","comment":{"id":7,"author":"bob","content":"hi","created_at":"...","parent_id":3}}
	{"type":"notification","message":"bob replied to your comment","comment_id":7,"page_id":1}
	{"type":"vote_update","comment_id":7,"net_votes":2}
	{"type":"typing","username":"bob","is_typing":true}
	{"type":"error","message":"Authentication required for notifications"}

Clients may send {"type":"typing","is_typing":true}; every other inbound
frame is ignored. Typing is rate limited per session.
*/
package websocket

// Package resp provides the wire protocol layer of the asyncredis client:
// request encoding and incremental reply decoding for the Redis serialization
// protocol (RESP2).
//
// This package has no knowledge of connections, pools or event loops. It only
// turns commands into frames and received bytes into replies, which keeps it
// usable by any transport.
//
// # Encoding
//
// Requests are always arrays of bulk strings, the command name first:
//
//	frame, err := resp.EncodeCommand("SET", resp.Args("key1", "val1")...)
//	// *3\r\n$3\r\nSET\r\n$4\r\nkey1\r\n$4\r\nval1\r\n
//
// # Decoding
//
// Decoder accepts received chunks as they arrive, however the transport
// fragments them, and reports a Reply once one is complete:
//
//	var dec resp.Decoder
//	for chunk := range chunks {
//	    if reply, ok := dec.Feed(chunk); ok {
//	        handle(reply)
//	    }
//	}
//
// Replies are tagged values (Simple, Error, Integer, Bulk, Null, Array). An
// array reply can be keyed by field names with Reply.Named, which is how
// HMGET/MGET results become mappings. Null elements are kept as Value{Null: true}
// so a missing key stays distinguishable from an empty string.
//
// # Error Handling
//
// Decoding never blocks on malformed input: an unknown type marker or a bad
// length header yields a ready Error reply carrying a *ProtocolError and the
// decoder resets. Server "-" replies carry a *ReplyError. Clients resolve lost
// commands with a *ConnectionError wrapping ErrConnectTimeout or ErrConnectionLost.
package resp

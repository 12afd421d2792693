// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Point-to-point transport contract consumed by the schedule executor.
// The core never manages sockets or queues directly.

package api

// Token correlates a posted send or receive with its completion.
type Token uint64

// Transport is one process's endpoint on a communicator. Peer ranks are
// communicator-relative: for an intercommunicator they index the remote group.
type Transport interface {
	// PostSend starts sending data to dest. The transport must not retain
	// data after the returned token completes.
	PostSend(dest int, tag Tag, data []byte) (Token, error)

	// PostRecv starts receiving exactly len(buf) bytes from src with tag.
	PostRecv(src int, tag Tag, buf []byte) (Token, error)

	// Poll reports whether tok completed. It never blocks. A token is
	// released once Poll returns true or an error.
	Poll(tok Token) (bool, error)
}

// TokenCanceler is implemented by transports able to withdraw a posted
// operation. Schedules use it to drop in-flight receives after a failure.
type TokenCanceler interface {
	CancelToken(tok Token)
}

// Package redisbus carries auth events over Redis pub/sub.
//
// Each client has its own channel. Envelopes carry the provider access token
// rather than an identity: subscribers verify the token and check that its
// session key still exists before treating the event as signed in.
//
// Keys:
//
//	<prefix>:session:<sid>          session marker, expires with the token
//	<prefix>:client:<client>:token  last token published for the client
//	<prefix>:client:<client>:events pub/sub channel
package redisbus

// Package gateway authorizes and meters every byte handed to a client.
//
// A segment request carries a stream token naming the content file it may
// read. The gateway verifies the token, resolves the file under the content
// root, debits the user's quota by the size actually served and only then
// hands back an open body. Nothing is served past a refused debit, and a debit
// is never refunded when the client disconnects early.
package gateway

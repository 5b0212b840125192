// Package netio provides the raw-Ethernet transport abstraction PUF-ACS
// runs over, plus a Linux AF_PACKET implementation built on
// golang.org/x/sys/unix and an in-memory PipeConn for tests.
package netio

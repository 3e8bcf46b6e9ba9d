package db

import (
	"errors"
	"fmt"
)

// Sentinels returned by Store implementations. Match them with errors.Is.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Op names the command that failed, spelled as on the wire.
type Op string

const (
	OpPing        Op = "PING"
	OpGet         Op = "GET"
	OpSet         Op = "SET"
	OpDel         Op = "DEL"
	OpScan        Op = "SCAN"
	OpHSet        Op = "HSET"
	OpHGetAll     Op = "HGETALL"
	OpCreateIndex Op = "FT.CREATE"
	OpDropIndex   Op = "FT.DROPINDEX"
	OpSearch      Op = "FT.SEARCH"
)

// Error tags a driver failure with its command.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with op. A nil err stays nil.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
